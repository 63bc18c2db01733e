package notify

import (
	"context"
	"sort"
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/tasks"
)

// DefaultLimit caps the reminder window; mobile platforms limit pending alarms.
const DefaultLimit = 30

// Reminder is one platform notification for a future task.
type Reminder struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	FireAt    time.Time `json:"fire_at"`
	TaskIndex int       `json:"task_index"`
	TaskTime  time.Time `json:"task_time"`
}

// Reminders is the platform reminder service.
type Reminders interface {
	Schedule(ctx context.Context, r Reminder) error
	CancelAll(ctx context.Context) error
}

// SelectUpcoming returns at most limit tasks strictly after now that are not
// completed and are unlocked, in ascending time order.
func SelectUpcoming(all []tasks.Task, now time.Time, limit int) []tasks.Task {
	if limit <= 0 {
		return nil
	}
	completed := tasks.NewCompletedSet(all)

	var out []tasks.Task
	for _, t := range all {
		if !t.Time.After(now) || t.Completed {
			continue
		}
		if !completed.Unlocked(t) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ReminderFor builds the notification payload for a task.
func ReminderFor(t tasks.Task) Reminder {
	return Reminder{
		ID:        t.TaskID,
		Title:     t.AlertTitle,
		Message:   t.AlertMessage,
		FireAt:    t.Time,
		TaskIndex: t.Index,
		TaskTime:  t.Time,
	}
}
