package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type QuestionType string

const (
	TypeInstruction QuestionType = "instruction"
	TypeText        QuestionType = "text"
	TypeDateTime    QuestionType = "datetime"
	TypeYesNo       QuestionType = "yesno"
	TypeSlider      QuestionType = "slider"
	TypeMulti       QuestionType = "multi"
	TypeMedia       QuestionType = "media"
	TypeExternal    QuestionType = "external"
)

// Question is the closed set of question variants. Callers dispatch with a
// type switch over the concrete pointer types below.
type Question interface {
	Common() *Base
	isQuestion()
}

// Base holds the fields every question variant shares.
type Base struct {
	ID        string       `json:"id"`
	Type      QuestionType `json:"type"`
	Text      string       `json:"text"`
	Required  bool         `json:"required"`
	RandGroup string       `json:"rand_group,omitempty"`
	HideID    string       `json:"hide_id,omitempty"`
	HideValue HideValue    `json:"hide_value,omitempty"`
	HideIf    bool         `json:"hide_if,omitempty"`
}

func (b *Base) Common() *Base { return b }
func (*Base) isQuestion()     {}

// HideRule is the branching trigger a question declares on another question.
type HideRule struct {
	TriggerID string
	Value     string
	If        bool
}

func (b *Base) Hide() (HideRule, bool) {
	if b.HideID == "" {
		return HideRule{}, false
	}
	return HideRule{TriggerID: b.HideID, Value: string(b.HideValue), If: b.HideIf}, true
}

type Instruction struct {
	Base
}

type Text struct {
	Base
	Subtype string `json:"subtype,omitempty"` // short, long, numeric
}

type DateTime struct {
	Base
	Subtype string `json:"subtype,omitempty"` // date, time, datetime
}

type YesNo struct {
	Base
	YesText string `json:"yes_text,omitempty"`
	NoText  string `json:"no_text,omitempty"`
}

type Slider struct {
	Base
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	HintLeft  string  `json:"hint_left,omitempty"`
	HintRight string  `json:"hint_right,omitempty"`
}

type Multi struct {
	Base
	Radio   bool     `json:"radio"`
	Modal   bool     `json:"modal"`
	Options []string `json:"options"`
	Shuffle bool     `json:"shuffle"`
}

type Media struct {
	Base
	Subtype string `json:"subtype"` // image, video, audio
	Src     string `json:"src"`
	Thumb   string `json:"thumb,omitempty"`
}

type External struct {
	Base
	Src string `json:"src"`
}

// HideValue accepts the string, boolean and numeric forms authors use for
// hide_value and keeps the textual form for comparison.
type HideValue string

func (h *HideValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*h = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = HideValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*h = HideValue(strconv.FormatBool(b))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("hide_value: %w", err)
		}
		*h = HideValue(n.String())
	}
	return nil
}

func (s *Section) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      string            `json:"name"`
		Shuffle   bool              `json:"shuffle"`
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.Shuffle = raw.Shuffle
	s.Questions = make([]Question, 0, len(raw.Questions))
	for i, rq := range raw.Questions {
		q, err := decodeQuestion(rq)
		if err != nil {
			return fmt.Errorf("section %q question %d: %w", raw.Name, i, err)
		}
		s.Questions = append(s.Questions, q)
	}
	return nil
}

func decodeQuestion(data json.RawMessage) (Question, error) {
	var head struct {
		Type QuestionType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var q Question
	switch head.Type {
	case TypeInstruction:
		q = &Instruction{}
	case TypeText:
		q = &Text{}
	case TypeDateTime:
		q = &DateTime{}
	case TypeYesNo:
		q = &YesNo{}
	case TypeSlider:
		q = &Slider{}
	case TypeMulti:
		q = &Multi{}
	case TypeMedia:
		q = &Media{}
	case TypeExternal:
		q = &External{}
	default:
		return nil, fmt.Errorf("unknown question type %q", head.Type)
	}
	if err := json.Unmarshal(data, q); err != nil {
		return nil, err
	}
	return q, nil
}
