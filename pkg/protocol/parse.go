package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid study protocol")

// ParseError is returned when the downloaded content is not a study protocol.
// Syntax distinguishes unparseable content from content missing required fields.
type ParseError struct {
	Reason string
	Syntax bool
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrInvalid, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, e.Reason)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalid, e.Err}
	}
	return []error{ErrInvalid}
}

// Parse decodes a protocol in JSON or YAML form.
func Parse(data []byte) (*Study, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return ParseJSON(trimmed)
	}
	return ParseYAML(trimmed)
}

func ParseJSON(data []byte) (*Study, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &ParseError{Reason: "content is not JSON", Syntax: true, Err: err}
	}
	if err := requireTopLevel(top); err != nil {
		return nil, err
	}

	var study Study
	if err := json.Unmarshal(data, &study); err != nil {
		return nil, &ParseError{Reason: "content does not match the protocol shape", Syntax: true, Err: err}
	}
	if strings.TrimSpace(study.Properties.StudyID) == "" {
		return nil, &ParseError{Reason: "properties.study_id is missing"}
	}
	return &study, nil
}

// ParseYAML converts a YAML-authored protocol to JSON and parses that, so both
// forms share one decoder.
func ParseYAML(data []byte) (*Study, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Reason: "content is not YAML", Syntax: true, Err: err}
	}
	if _, ok := doc.(map[string]interface{}); !ok {
		return nil, &ParseError{Reason: "content is not a mapping", Syntax: true}
	}
	converted, err := json.Marshal(doc)
	if err != nil {
		return nil, &ParseError{Reason: "content cannot be converted", Syntax: true, Err: err}
	}
	return ParseJSON(converted)
}

func requireTopLevel(top map[string]json.RawMessage) error {
	for _, key := range []string{"properties", "modules"} {
		raw, ok := top[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return &ParseError{Reason: key + " is missing"}
		}
	}
	return nil
}

// Encode renders the study back to its canonical JSON form.
func (s *Study) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Clone returns a deep copy of the study.
func (s *Study) Clone() (*Study, error) {
	data, err := s.Encode()
	if err != nil {
		return nil, err
	}
	return ParseJSON(data)
}
