package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// errorBody is the envelope of non-success backend responses
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// statusMessage turns the body of a non-success response into one display
// string.
func statusMessage(status int, body []byte) string {
	var envelope errorBody
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Sprintf("Response not converted to JSON! (%v)", err)
	}
	if msg := NormalizeDetail(envelope.Detail); msg != "" {
		return msg
	}
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}

// NormalizeDetail renders the backend's detail field, which is a plain string,
// an object carrying a message, or a list of validation errors carrying msg.
// Any other shape is returned as compact JSON. An absent or null detail
// yields "".
func NormalizeDetail(detail json.RawMessage) string {
	trimmed := bytes.TrimSpace(detail)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}

	var object struct {
		Message *string `json:"message"`
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &object); err == nil && object.Message != nil {
			return *object.Message
		}
	}

	var list []struct {
		Msg *string `json:"msg"`
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err == nil && len(list) > 0 && list[0].Msg != nil {
			return *list[0].Msg
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed)
	}
	return compact.String()
}
