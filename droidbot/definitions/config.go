package definitions

import (
	"errors"
	"fmt"
	"os"
	"strings"

	json "github.com/bytedance/sonic"
	"github.com/samber/lo"
	"github.com/spance/droidbot-go/utils"
	"github.com/tidwall/gjson"
)

// Config is the analysis configuration handed to the guest. The file groups
// keys by section; sections are flattened and decoded into the typed fields,
// and every key without a field is kept in Options.
type Config struct {
	Category   string `json:"category"`
	Target     string `json:"target"`
	FileName   string `json:"file_name"`
	Package    string `json:"package"`
	Activity   string `json:"activity"`
	Timeout    int    `json:"timeout"`
	Policy     string `json:"policy"`
	EventCount int    `json:"event_count"`

	Options map[string]any `json:"-"`
}

var configFields = []string{
	"category", "target", "file_name", "package", "activity",
	"timeout", "policy", "event_count",
}

var ErrInvalidConfig = errors.New("invalid analysis config")

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidConfig
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level must be an object", ErrInvalidConfig)
	}

	flat := make(map[string]any)
	root.ForEach(func(section, body gjson.Result) bool {
		if !body.IsObject() {
			flat[section.String()] = body.Value()
			return true
		}
		body.ForEach(func(name, value gjson.Result) bool {
			flat[name.String()] = value.Value()
			return true
		})
		return true
	})

	known := lo.PickByKeys(flat, configFields)
	encoded, err := json.Marshal(known)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	cfg := &Config{}
	if err := json.Unmarshal(encoded, cfg); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	cfg.Options = lo.OmitByKeys(flat, append(configFields, "options"))
	switch opts := flat["options"].(type) {
	case string:
		for k, v := range ParseOptions(opts) {
			cfg.Options[k] = v
		}
	case map[string]any:
		for k, v := range opts {
			cfg.Options[k] = v
		}
	}
	return cfg, nil
}

// ParseOptions splits the "k1=v1,k2=v2" options string the analyzer receives.
// Entries without '=' are ignored.
func ParseOptions(s string) map[string]any {
	options := make(map[string]any)
	for _, field := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok || key == "" {
			continue
		}
		options[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return options
}

func (c *Config) Get(name string, def any) any {
	if v, ok := c.Options[name]; ok {
		return v
	}
	return def
}

func (c *Config) GetString(name, def string) string {
	if s := utils.AnyToString(c.Get(name, nil)); s != "" {
		return s
	}
	return def
}

func (c *Config) GetInt(name string, def int) int {
	return utils.AnyToInt(c.Get(name, nil), def)
}

func (c *Config) GetBool(name string, def bool) bool {
	return utils.AnyToBool(c.Get(name, nil), def)
}
