package tasks

// CompletedSet is the set of module uuids with at least one completed task.
type CompletedSet map[string]struct{}

func NewCompletedSet(all []Task) CompletedSet {
	set := make(CompletedSet, len(all))
	for _, t := range all {
		if t.Completed {
			set[t.UUID] = struct{}{}
		}
	}
	return set
}

// Unlocked reports whether every prerequisite of t is in the set. It makes a
// single pass over t.UnlockAfter, so cyclic prerequisites simply stay locked.
func (s CompletedSet) Unlocked(t Task) bool {
	for _, prereq := range t.UnlockAfter {
		if _, ok := s[prereq]; !ok {
			return false
		}
	}
	return true
}

// IsUnlocked is the single-task form of CompletedSet.Unlocked.
func IsUnlocked(t Task, all []Task) bool {
	return NewCompletedSet(all).Unlocked(t)
}
