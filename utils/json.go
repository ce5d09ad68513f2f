package utils

import (
	json "github.com/bytedance/sonic"
)

// JsonString renders obj for a log field. Values sonic cannot encode yield "".
func JsonString(obj any) string {
	data, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(data)
}

func JsonIndent(obj any) string {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
