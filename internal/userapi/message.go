package userapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/yanizio/adept-users/internal/form"
)

// decodeSuccess reads `{"user": {...}, "message": "..."}`.  A body without
// a user key is treated as the user object itself.
func decodeSuccess(raw []byte) form.CreateResponse {
	out := form.CreateResponse{Success: true}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return out
	}
	if msg, ok := obj["message"].(string); ok {
		out.Message = msg
	}
	if u, ok := obj["user"].(map[string]any); ok {
		out.User = u
		return out
	}
	delete(obj, "message")
	if len(obj) > 0 {
		out.User = obj
	}
	return out
}

// decodeFailure extracts a rejection message in priority order: a plain
// string body, then `detail`, then `message`.  An empty result leaves the
// generic fallback to the form pipeline.
func decodeFailure(raw []byte, contentType string) form.CreateResponse {
	out := form.CreateResponse{}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		if strings.HasPrefix(contentType, "text/plain") {
			out.Error = strings.TrimSpace(string(raw))
		}
		return out
	}

	switch body := v.(type) {
	case string:
		out.Error = strings.TrimSpace(body)
	case map[string]any:
		out.Error = firstMessage(body["detail"], body["message"])
		out.FieldErrors = fieldErrors(body["errors"])
	}
	return out
}

// firstMessage returns the first candidate that yields non-empty text.
func firstMessage(candidates ...any) string {
	for _, c := range candidates {
		if s := messageOf(c); s != "" {
			return s
		}
	}
	return ""
}

// messageOf flattens the shapes services use for detail: a string, a list
// of strings, or a list of {"msg": "..."} objects.
func messageOf(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case []any:
		parts := lo.FilterMap(x, func(e any, _ int) (string, bool) {
			switch y := e.(type) {
			case string:
				return y, y != ""
			case map[string]any:
				s := firstMessage(y["msg"], y["message"])
				return s, s != ""
			}
			return "", false
		})
		return strings.Join(parts, "\n")
	}
	return ""
}

// fieldErrors maps `{"email": ["taken"]}` or `{"email": "taken"}`.
func fieldErrors(v any) map[string][]string {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	out := make(map[string][]string, len(obj))
	for k, e := range obj {
		switch x := e.(type) {
		case string:
			out[k] = []string{x}
		case []any:
			out[k] = lo.Map(x, func(m any, _ int) string { return fmt.Sprint(m) })
		}
	}
	return out
}
