package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError lists every structural problem found in a parsed study.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Load parses and validates a protocol.
func Load(data []byte) (*Study, error) {
	study, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := study.Validate(); err != nil {
		return nil, err
	}
	return study, nil
}

// Validate checks the invariants the scheduler and engines rely on. Unlock
// cycles are not errors; see UnlockCycles.
func (s *Study) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(s.Modules) == 0 {
		add("study has no modules")
	}

	uuids := make(map[string]int, len(s.Modules))
	for i, m := range s.Modules {
		if m.UUID == "" {
			add("module %d has no uuid", i)
			continue
		}
		if prev, dup := uuids[m.UUID]; dup {
			add("modules %d and %d share uuid %s", prev, i, m.UUID)
			continue
		}
		uuids[m.UUID] = i
	}

	for i, m := range s.Modules {
		for _, dep := range m.UnlockAfter {
			if _, ok := uuids[dep]; !ok {
				add("module %d unlocks after unknown uuid %s", i, dep)
			}
		}
		for _, t := range m.Alerts.Times {
			if t.Hours < 0 || t.Hours > 23 || t.Minutes < 0 || t.Minutes > 59 {
				add("module %d has invalid alert time %02d:%02d", i, t.Hours, t.Minutes)
			}
		}
		if m.Alerts.StartOffset < 0 || m.Alerts.Duration < 0 || m.Alerts.RandomInterval < 0 {
			add("module %d has negative alert window", i)
		}

		switch {
		case m.Type == ModulePVT:
			if m.Trials <= 0 {
				add("module %d needs trials > 0", i)
			}
			if m.MaxReaction <= 0 {
				add("module %d needs max_reaction > 0", i)
			}
			if m.MaxWaiting < m.MinWaiting || m.MinWaiting < 0 {
				add("module %d has an invalid waiting window", i)
			}
		case m.Type.RunsInSurveyEngine():
			validateSections(i, m, add)
		default:
			add("module %d has unknown type %q", i, m.Type)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateSections(i int, m Module, add func(string, ...interface{})) {
	if len(m.Sections) == 0 {
		add("module %d has no sections", i)
	}
	ids := map[string]bool{}
	for j, section := range m.Sections {
		if len(section.Questions) == 0 {
			add("module %d section %d has no questions", i, j)
		}
		for _, q := range section.Questions {
			base := q.Common()
			if base.ID == "" {
				add("module %d section %d has a question without id", i, j)
				continue
			}
			if ids[base.ID] {
				add("module %d repeats question id %s", i, base.ID)
			}
			ids[base.ID] = true
			if s, ok := q.(*Slider); ok && s.Max < s.Min {
				add("module %d slider %s has max < min", i, base.ID)
			}
			if mq, ok := q.(*Multi); ok && len(mq.Options) == 0 {
				add("module %d multi %s has no options", i, base.ID)
			}
		}
	}
	for _, section := range m.Sections {
		for _, q := range section.Questions {
			if rule, ok := q.Common().Hide(); ok && !ids[rule.TriggerID] {
				add("module %d question %s hides on unknown question %s", i, q.Common().ID, rule.TriggerID)
			}
		}
	}
}

// UnlockCycles returns each cycle of the unlock_after graph as the list of
// module uuids on it. Tasks on a cycle can never become available.
func (s *Study) UnlockCycles() [][]string {
	const (
		unvisited = iota
		active
		done
	)
	deps := make(map[string][]string, len(s.Modules))
	var order []string
	for _, m := range s.Modules {
		if _, seen := deps[m.UUID]; !seen {
			order = append(order, m.UUID)
		}
		deps[m.UUID] = append(deps[m.UUID], m.UnlockAfter...)
	}

	state := make(map[string]int, len(deps))
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		state[id] = active
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known {
				continue
			}
			switch state[dep] {
			case unvisited:
				visit(dep)
			case active:
				for k := len(stack) - 1; k >= 0; k-- {
					if stack[k] == dep {
						cycle := append([]string{}, stack[k:]...)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for _, id := range order {
		if state[id] == unvisited {
			visit(id)
		}
	}
	for _, c := range cycles {
		sort.Strings(c)
	}
	return cycles
}

// IsInvalid reports whether err describes an unusable protocol.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}
