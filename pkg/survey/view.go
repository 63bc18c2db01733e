package survey

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
)

// Option is one entry of a multi-choice checklist.
type Option struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

// QuestionState is the per-execution view of a question. The protocol
// question it wraps is never modified.
type QuestionState struct {
	ID       string                `json:"id"`
	Type     protocol.QuestionType `json:"type"`
	Question protocol.Question     `json:"question"`
	Response models.Value          `json:"response"`
	Model    models.Value          `json:"model"`
	Options  []Option              `json:"options,omitempty"`
	Src      string                `json:"src,omitempty"`
	Thumb    string                `json:"thumb,omitempty"`
	Hidden   bool                  `json:"hidden"`
	Invalid  bool                  `json:"invalid"`
	NoToggle bool                  `json:"no_toggle"`

	rule    protocol.HideRule
	hasRule bool
	checked []string // checklist options in the order they were ticked
}

func (q *QuestionState) Visible() bool { return !q.Hidden }

func (q *QuestionState) required() bool { return q.Question.Common().Required }

func newQuestionState(question protocol.Question, now time.Time, rng *rand.Rand, participant string, san Sanitizer) (*QuestionState, error) {
	base := question.Common()
	qs := &QuestionState{
		ID:       base.ID,
		Type:     base.Type,
		Question: question,
	}
	qs.rule, qs.hasRule = base.Hide()

	switch q := question.(type) {
	case *protocol.Instruction, *protocol.Text, *protocol.YesNo:
	case *protocol.DateTime:
		qs.Model = models.Text(now.Format(time.RFC3339))
	case *protocol.Slider:
		qs.Model = models.Number(q.Min + (q.Max-q.Min)/2)
	case *protocol.Multi:
		qs.Options = make([]Option, len(q.Options))
		for i, text := range q.Options {
			qs.Options[i] = Option{Text: text}
		}
		if q.Shuffle {
			rng.Shuffle(len(qs.Options), func(i, j int) {
				qs.Options[i], qs.Options[j] = qs.Options[j], qs.Options[i]
			})
		}
		if !q.Radio {
			qs.Response = models.List()
		}
	case *protocol.Media:
		qs.Src = san.Sanitize(q.Src)
		if q.Thumb != "" {
			qs.Thumb = san.Sanitize(q.Thumb)
		}
	case *protocol.External:
		qs.Src = san.Sanitize(withParticipant(q.Src, participant))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedShape, question)
	}
	return qs, nil
}

// answerable reports whether SetAnswer applies to q.
func answerable(q protocol.Question) bool {
	switch q.(type) {
	case *protocol.Text, *protocol.DateTime, *protocol.YesNo, *protocol.Slider, *protocol.Multi:
		return true
	default:
		return false
	}
}

// checklistResponse renders the ticked options as "a;b;" in toggle order.
func checklistResponse(checked []string) models.Value {
	var s string
	for _, text := range checked {
		s += text + ";"
	}
	return models.Text(s)
}
