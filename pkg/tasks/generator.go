package tasks

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/protocol"
)

// GenerateOptions controls task generation. Rand makes generation repeatable;
// nil uses a time-seeded source.
type GenerateOptions struct {
	Condition string
	Rand      *rand.Rand
}

// Window is the calendar span in which a module's tasks fall.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in the half-open span [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ModuleWindow returns [day(enrolledAt)+start_offset, +duration) in the
// enrolment's location. A zero duration covers a single day.
func ModuleWindow(m protocol.Module, enrolledAt time.Time) Window {
	y, mo, d := enrolledAt.Date()
	day := time.Date(y, mo, d, 0, 0, 0, 0, enrolledAt.Location())
	days := m.Alerts.Duration
	if days < 1 {
		days = 1
	}
	start := day.AddDate(0, 0, m.Alerts.StartOffset)
	return Window{Start: start, End: start.AddDate(0, 0, days)}
}

// Generate expands every module's alert rule into concrete tasks ordered by
// time, then module index. Windows that have already elapsed still produce
// tasks so unlock chains depending on them stay satisfiable.
func Generate(study *protocol.Study, enrolledAt time.Time, opts GenerateOptions) []Task {
	rng := opts.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}

	var out []Task
	for index, m := range study.Modules {
		if !m.AppliesTo(opts.Condition) {
			continue
		}
		for _, at := range occurrences(m, enrolledAt, rng) {
			out = append(out, newTask(m, index, at))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].Index < out[j].Index
	})
	for i := range out {
		out[i].TaskID = i + 1
	}
	return out
}

func occurrences(m protocol.Module, enrolledAt time.Time, rng *rand.Rand) []time.Time {
	w := ModuleWindow(m, enrolledAt)
	if len(m.Alerts.Times) == 0 {
		return []time.Time{w.Start}
	}

	var times []time.Time
	for day := w.Start; day.Before(w.End); day = day.AddDate(0, 0, 1) {
		for _, tod := range m.Alerts.Times {
			at := time.Date(day.Year(), day.Month(), day.Day(), tod.Hours, tod.Minutes, 0, 0, day.Location())
			if m.Alerts.Random && m.Alerts.RandomInterval > 0 {
				span := time.Duration(m.Alerts.RandomInterval) * time.Minute
				at = at.Add(time.Duration(rng.Int64N(int64(span) + 1)))
				if last := w.End.Add(-time.Second); at.After(last) {
					at = last
				}
			}
			times = append(times, at.Truncate(time.Second))
		}
	}
	return times
}

func newTask(m protocol.Module, index int, at time.Time) Task {
	unlock := append([]string{}, m.UnlockAfter...)
	return Task{
		UUID:         m.UUID,
		Index:        index,
		Name:         m.Name,
		Type:         m.Type,
		UnlockAfter:  unlock,
		Sticky:       m.Alerts.Sticky,
		StickyLabel:  m.Alerts.StickyLabel,
		AlertTitle:   m.Alerts.Title,
		AlertMessage: m.Alerts.Message,
		Timeout:      m.Alerts.Timeout,
		TimeoutAfter: m.Alerts.TimeoutAfter,
		Time:         at,
	}
}
