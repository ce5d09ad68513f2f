package constants

import (
	_ "embed"
	"errors"
	"sync"

	json "github.com/bytedance/sonic"
)

//go:embed key_aliases.json
var aliasesJSON []byte

var (
	keycode2AliasesMap map[string][]string
	alias2KeycodeMap   map[string]string
	errLoad            error
	once               = new(sync.Once)
)

// LoadKeys loads the key alias table from the embedded JSON
func LoadKeys() (map[string][]string, error) {
	once.Do(func() {
		keycode2AliasesMap = make(map[string][]string)
		if err := json.Unmarshal(aliasesJSON, &keycode2AliasesMap); err != nil {
			errLoad = errors.Join(err, errors.New("failed to unmarshal embedded key_aliases.json"))
			return
		}

		alias2KeycodeMap = make(map[string]string)
		for keycode, aliases := range keycode2AliasesMap {
			for _, alias := range aliases {
				alias2KeycodeMap[alias] = keycode
			}
		}
	})
	return keycode2AliasesMap, errLoad
}

// GetKeycodeByAlias returns the keycode for a given alias
func GetKeycodeByAlias(alias string) (string, bool) {
	_, err := LoadKeys()
	if err != nil {
		return "", false
	}
	keycode, ok := alias2KeycodeMap[alias]
	return keycode, ok
}

// NormalizeKey maps a key alias to its keycode. Keycodes and unknown names are
// returned unchanged so that numeric or vendor keycodes still reach the device.
func NormalizeKey(key string) string {
	if keycode, ok := GetKeycodeByAlias(key); ok {
		return keycode
	}
	return key
}
