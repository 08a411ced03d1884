// Package transcript turns the voice agent's conversation payload into the
// canonical role-labelled text that is stored on a session, and recovers the
// session code from that text.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	LabelExaminer = "EXAMINER"
	LabelStudent  = "STUDENT"

	// agentRole is the role the voice platform assigns to the examiner's turns.
	agentRole = "agent"

	separator = "\n\n"
)

// ErrEmpty is returned when the payload carries no transcript at all.
var ErrEmpty = errors.New("transcript is empty")

// Entry is one conversational turn as delivered by the voice platform.
type Entry struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// UnmarshalJSON accepts any JSON scalar as the message. Strings are used
// verbatim, null is empty and other values keep their JSON text, so a spoken
// code delivered as a number still reaches the extractor.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	msg, err := messageText(raw.Message)
	if err != nil {
		return err
	}
	e.Role = raw.Role
	e.Message = msg
	return nil
}

func messageText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("decode message: %w", err)
		}
		return s, nil
	}
	return string(trimmed), nil
}

// Label maps a platform role to its canonical speaker label. Only the agent is
// the examiner; every other role is treated as the student.
func Label(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), agentRole) {
		return LabelExaminer
	}
	return LabelStudent
}

// Format renders entries as "LABEL: message" blocks separated by a blank line,
// in input order.
func Format(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, Label(e.Role)+": "+e.Message)
	}
	return strings.Join(parts, separator)
}

// FromJSON normalizes a raw transcript value. Arrays are decoded as entries and
// formatted; a JSON string is used verbatim; any other value is coerced to its
// JSON text.
func FromJSON(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", ErrEmpty
	}

	switch trimmed[0] {
	case '[':
		var entries []Entry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return "", fmt.Errorf("decode transcript entries: %w", err)
		}
		return Format(entries), nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("decode transcript string: %w", err)
		}
		return s, nil
	default:
		return string(trimmed), nil
	}
}
