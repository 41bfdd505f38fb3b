package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	ocerrors "github.com/opencall/opencall/internal/errors"
)

const fallbackErrorMessage = "Something went wrong"

// isJSON reports whether a Content-Type header denotes JSON.
func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}

// parseBody decodes a JSON body for interceptors and error data. Invalid
// JSON yields nil.
func parseBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// unwrapRaw strips a {"data": ...} envelope. Objects with any other key
// are returned unchanged.
func unwrapRaw(raw []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	if inner, ok := obj["data"]; ok && len(obj) == 1 {
		return inner
	}
	return raw
}

// UnwrapJSON strips a {"data": ...} envelope from a raw body, for callers
// that talk to the API outside the pipeline.
func UnwrapJSON(raw []byte) []byte { return unwrapRaw(raw) }

// Unwrap applies the envelope rule to an already parsed value.
func Unwrap(v any) any {
	if obj, ok := v.(map[string]any); ok && len(obj) == 1 {
		if inner, ok := obj["data"]; ok {
			return inner
		}
	}
	return v
}

// classify turns a non-2xx response into an APIError.
func classify(status int, data any) *ocerrors.APIError {
	kind := ocerrors.KindHTTP
	if status == 401 {
		kind = ocerrors.KindAuthentication
	}

	obj, _ := data.(map[string]any)

	if fields := validationFields(obj["errors"]); fields != nil {
		msg := joinFields(fields)
		if msg == "" {
			msg = fallbackErrorMessage
		}
		return &ocerrors.APIError{
			Kind:    ocerrors.KindValidation,
			Status:  status,
			Message: msg,
			Data:    data,
			Fields:  fields,
		}
	}

	msg := fallbackErrorMessage
	if s, ok := obj["error"].(string); ok && s != "" {
		msg = s
	} else if s, ok := obj["message"].(string); ok && s != "" {
		msg = s
	}

	return &ocerrors.APIError{Kind: kind, Status: status, Message: msg, Data: data}
}

// validationFields extracts per-field messages from an "errors" member.
// Arrays are keyed by position.
func validationFields(v any) map[string]string {
	switch errs := v.(type) {
	case map[string]any:
		fields := make(map[string]string, len(errs))
		for k, msg := range errs {
			fields[k] = fieldMessage(msg)
		}
		return fields
	case []any:
		fields := make(map[string]string, len(errs))
		for i, msg := range errs {
			fields[fmt.Sprintf("%03d", i)] = fieldMessage(msg)
		}
		return fields
	default:
		return nil
	}
}

func fieldMessage(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case []any:
		parts := make([]string, 0, len(m))
		for _, p := range m {
			parts = append(parts, fieldMessage(p))
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		return fmt.Sprint(m)
	}
}

func joinFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fields[k])
	}
	return strings.Join(msgs, ", ")
}
