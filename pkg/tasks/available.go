package tasks

import (
	"sort"
	"time"
)

// IsAvailable applies the read-time rules: the task is due, unlocked, not
// completed unless sticky, and not past its timeout unless sticky.
func IsAvailable(t Task, completed CompletedSet, now time.Time) bool {
	if t.Time.After(now) {
		return false
	}
	if !completed.Unlocked(t) {
		return false
	}
	if t.Sticky {
		return true
	}
	if t.Completed {
		return false
	}
	if t.Timeout && !now.Before(t.Time.Add(time.Duration(t.TimeoutAfter)*time.Minute)) {
		return false
	}
	return true
}

// Available returns the display list, newest first.
func Available(all []Task, now time.Time) []Task {
	completed := NewCompletedSet(all)
	var out []Task
	for _, t := range all {
		if IsAvailable(t, completed, now) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.After(out[j].Time)
	})
	return out
}
