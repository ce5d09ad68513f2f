package helper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spance/droidbot-go/utils"
)

const (
	MetadataDo     = "do"
	MetadataFinish = "finish"
)

var ErrUnknownAction = errors.New("unknown action")

type Action map[string]any

func (a Action) Metadata() string {
	s, _ := a["_metadata"].(string)
	return s
}

// Name is the action="..." argument of a do() call.
func (a Action) Name() string {
	s, _ := a["action"].(string)
	return s
}

func (a Action) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Point reads a two element coordinate such as element=[500,320].
func (a Action) Point(key string) (int, int, bool) {
	p := utils.AnyToIntSlice(a[key])
	if len(p) != 2 {
		return 0, 0, false
	}
	return p[0], p[1], true
}

type ActionResult struct {
	Success      bool
	ShouldFinish bool
	Message      string
}

func ParseAction(response string) (Action, error) {
	log.Debug().Str("response", response).Msg("[ParseAction] parsing action")

	response = strings.TrimSpace(response)

	// case 1: do(action="Type" ...) / do(action="Type_Name" ...)
	if strings.HasPrefix(response, `do(action="Type"`) ||
		strings.HasPrefix(response, `do(action="Type_Name"`) {

		text, err := extractQuotedArg(response, "text")
		if err != nil {
			return nil, err
		}

		return Do(map[string]any{
			"action": "Type",
			"text":   text,
		}), nil
	}

	// case 2: generic do(...)
	if strings.HasPrefix(response, "do(") {
		action, err := parseDoCall(response)
		if err != nil {
			return nil, fmt.Errorf("failed to parse do() action: %w", err)
		}
		return action, nil
	}

	// case 3: finish(message="...")
	if strings.HasPrefix(response, "finish") {
		msg, err := extractQuotedArg(response, "message")
		if err != nil {
			return nil, err
		}

		return Finish(map[string]any{
			"message": msg,
		}), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownAction, response)
}

func parseDoCall(expr string) (Action, error) {
	if !strings.HasPrefix(expr, "do(") || !strings.HasSuffix(expr, ")") {
		return nil, errors.New("invalid do() syntax")
	}

	body := strings.TrimSuffix(strings.TrimPrefix(expr, "do("), ")")

	action := Action{
		"_metadata": MetadataDo,
	}

	if strings.TrimSpace(body) == "" {
		return action, nil
	}

	for _, part := range splitArgs(body) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid argument: %s", part)
		}

		key := strings.TrimSpace(kv[0])
		valStr := strings.TrimSpace(kv[1])

		val, err := parseLiteral(valStr)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}

		action[key] = val
	}
	return action, nil
}

func extractQuotedArg(s, key string) (string, error) {
	idx := strings.Index(s, key+"=")
	if idx == -1 {
		return "", fmt.Errorf("missing %s", key)
	}

	rest := s[idx+len(key)+1:]
	if len(rest) < 2 || rest[0] != '"' {
		return "", fmt.Errorf("invalid %s format", key)
	}

	rest = rest[1:]
	end := strings.LastIndex(rest, `"`)

	if end == -1 {
		return "", fmt.Errorf("unterminated string for %s", key)
	}

	return rest[:end], nil
}

// splitArgs splits on commas outside quotes and brackets.
func splitArgs(s string) []string {
	var (
		args     []string
		current  strings.Builder
		inQuotes bool
		depth    int
	)

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == '[' && !inQuotes:
			depth++
			current.WriteRune(r)
		case r == ']' && !inQuotes:
			depth--
			current.WriteRune(r)
		case r == ',' && !inQuotes && depth == 0:
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}
	return args
}

func parseLiteral(s string) (any, error) {
	// string
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1], nil
	}

	// bool
	if s == "true" || s == "True" {
		return true, nil
	}
	if s == "false" || s == "False" {
		return false, nil
	}
	// int[]
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		content := strings.TrimSpace(s[1 : len(s)-1])
		if content == "" {
			return []int{}, nil
		}

		parts := strings.Split(content, ",")
		result := make([]int, 0, len(parts))

		for _, p := range parts {
			p = strings.TrimSpace(p)
			var v int
			if _, err := fmt.Sscanf(p, "%d", &v); err != nil {
				return nil, fmt.Errorf("invalid int in array: %s", p)
			}
			result = append(result, v)
		}
		return result, nil
	}
	// int
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err == nil && fmt.Sprint(i) == s {
		return i, nil
	}

	// float
	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err == nil {
		return f, nil
	}

	return nil, fmt.Errorf("unsupported literal: %s", s)
}

func Do(kwargs map[string]any) Action {
	kwargs["_metadata"] = MetadataDo
	return kwargs
}

func Finish(kwargs map[string]any) Action {
	kwargs["_metadata"] = MetadataFinish
	return kwargs
}
