package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrFileValue is returned when a file field is set through DecodeValue.
var ErrFileValue = errors.New("form: file fields accept uploads only")

// DecodeValue converts a JSON-encoded value into the Go type the state
// container stores for d's kind: string, float64 (or nil), or []int64.
// Emails are trimmed and a blank number string decodes as nil.
func DecodeValue(d FieldDescriptor, raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	isNull := len(raw) == 0 || bytes.Equal(raw, []byte("null"))

	switch d.Kind {
	case KindText, KindEmail, KindPassword, KindSelect:
		if isNull {
			return "", nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("field %q expects a string: %w", d.Key, err)
		}
		if d.Kind == KindEmail {
			s = strings.TrimSpace(s)
		}
		return s, nil

	case KindNumber:
		if isNull {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("field %q expects a number: %w", d.Key, err)
		}
		switch x := v.(type) {
		case float64:
			return x, nil
		case string:
			// Non-numeric text is kept so validation can report it.
			if strings.TrimSpace(x) == "" {
				return nil, nil
			}
			return x, nil
		default:
			return nil, fmt.Errorf("field %q expects a number", d.Key)
		}

	case KindMultiSelect:
		if isNull {
			return []int64{}, nil
		}
		var v []any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("field %q expects an array: %w", d.Key, err)
		}
		ids, ok := ToIDs(v)
		if !ok {
			return nil, fmt.Errorf("field %q: %w", d.Key, ErrInvalidItem)
		}
		return ids, nil

	case KindFile:
		return nil, ErrFileValue

	default:
		return nil, fmt.Errorf("field %q has unsupported kind %q", d.Key, d.Kind)
	}
}
