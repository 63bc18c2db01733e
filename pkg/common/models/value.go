package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindText
	KindNumber
	KindList
)

// Value is a question answer: free text, a number, or a list of strings.
// The zero Value is the unanswered state and encodes as "".
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	List   []string
}

// Shown is the sentinel response given to the visible member of a
// randomization group.
var Shown = Number(1)

func Text(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{Kind: KindText, Text: s}
}

func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

func List(items ...string) Value {
	return Value{Kind: KindList, List: append([]string{}, items...)}
}

// IsEmpty reports whether the value counts as unanswered for validation.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindText:
		return v.Text == ""
	case KindNumber:
		return false
	case KindList:
		return len(v.List) == 0
	default:
		return true
	}
}

// String renders the value the way branching rules compare it.
func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindList:
		return strings.Join(v.List, ";")
	default:
		return ""
	}
}

// Float returns the numeric form of the value, parsing text when needed.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Number, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindText:
		return json.Marshal(v.Text)
	case KindNumber:
		return json.Marshal(v.Number)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return []byte(`""`), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = List(items...)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Text(strconv.FormatBool(b))
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported response value %s: %w", string(data), err)
		}
		*v = Number(n)
	}
	return nil
}
