package survey

import (
	"strconv"
	"strings"

	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
)

// applyRandGroups shows one member of every rand group and removes the rest
// from branching for the lifetime of the session.
func (s *Session) applyRandGroups() {
	groups := make(map[string][]*QuestionState)
	var order []string
	for _, q := range s.all {
		g := q.Question.Common().RandGroup
		if g == "" {
			continue
		}
		if _, seen := groups[g]; !seen {
			order = append(order, g)
		}
		groups[g] = append(groups[g], q)
	}

	for _, g := range order {
		members := groups[g]
		pick := s.rng.IntN(len(members))
		for i, q := range members {
			if i == pick {
				q.NoToggle = false
				q.Hidden = false
				q.Response = models.Shown
				continue
			}
			q.NoToggle = true
			q.Hidden = true
			q.hasRule = false
			q.rule = protocol.HideRule{}
		}
	}
}

// evaluateAll runs branching once for every question as a trigger.
func (s *Session) evaluateAll() {
	for _, q := range s.all {
		s.evaluate(q)
	}
}

// evaluate recomputes visibility of every question that branches on trigger.
func (s *Session) evaluate(trigger *QuestionState) {
	if trigger.NoToggle {
		return
	}
	for _, dep := range s.all {
		if dep.NoToggle || !dep.hasRule || dep.rule.TriggerID != trigger.ID {
			continue
		}
		if hidden, ok := hiddenBy(trigger, dep.rule); ok {
			dep.Hidden = hidden
		}
	}
}

// hiddenBy decides a dependent's visibility from its trigger's answer. The
// second result is false when the trigger leaves the dependent as it is.
func hiddenBy(trigger *QuestionState, rule protocol.HideRule) (bool, bool) {
	switch trigger.Question.(type) {
	case *protocol.YesNo, *protocol.Multi, *protocol.Text, *protocol.DateTime:
		return (rule.Value == trigger.Response.String()) == rule.If, true
	case *protocol.Slider:
		answer, ok := trigger.Response.Float()
		if !ok {
			return false, false
		}
		below, cutoff, ok := parseCutoff(rule.Value)
		if !ok {
			return false, false
		}
		if below {
			return answer <= cutoff, true
		}
		return answer >= cutoff, true
	case *protocol.Instruction, *protocol.Media, *protocol.External:
		return false, false
	default:
		return false, false
	}
}

// parseCutoff reads "<N", ">=N", ">N" and bare "N" slider thresholds.
func parseCutoff(v string) (below bool, cutoff float64, ok bool) {
	v = strings.TrimSpace(v)
	switch {
	case strings.HasPrefix(v, "<"):
		below = true
		v = strings.TrimPrefix(v, "<")
	case strings.HasPrefix(v, ">="):
		v = strings.TrimPrefix(v, ">=")
	case strings.HasPrefix(v, ">"):
		v = strings.TrimPrefix(v, ">")
	}
	cutoff, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return false, 0, false
	}
	return below, cutoff, true
}
