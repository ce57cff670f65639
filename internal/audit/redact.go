package audit

import (
	"encoding/json"
	"strings"
	"unicode"
)

const redactedValue = "[REDACTED]"

var sensitiveTokens = map[string]struct{}{
	"password": {},
	"pin":      {},
	"secret":   {},
	"token":    {},
	"otp":      {},
}

// isSensitiveKey splits a key into words on separators and camelCase
// boundaries and matches whole words only, so "pin_code" is sensitive and
// "shipping" is not.
func isSensitiveKey(key string) bool {
	for _, word := range keyWords(key) {
		if _, ok := sensitiveTokens[word]; ok {
			return true
		}
	}
	return false
}

func keyWords(key string) []string {
	var (
		words   []string
		current []rune
	)
	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return words
}

func redactValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, inner := range typed {
			if isSensitiveKey(k) {
				out[k] = redactedValue
				continue
			}
			out[k] = redactValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = redactValue(inner)
		}
		return out
	default:
		return v
	}
}

// sanitize normalizes v through JSON and masks sensitive keys at any depth.
func sanitize(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(redactValue(generic))
}
