package tasks

import (
	"time"

	"github.com/synaptica-ai/studyrunner/pkg/common/models"
	"github.com/synaptica-ai/studyrunner/pkg/protocol"
)

// Task is one scheduled occurrence of a module. UUID is the module uuid and is
// shared by every occurrence; TaskID is unique and used for routing.
type Task struct {
	UUID         string              `json:"uuid"`
	Index        int                 `json:"index"`
	TaskID       int                 `json:"task_id"`
	Name         string              `json:"name"`
	Type         protocol.ModuleType `json:"type"`
	UnlockAfter  []string            `json:"unlock_after"`
	Sticky       bool                `json:"sticky"`
	StickyLabel  string              `json:"sticky_label,omitempty"`
	AlertTitle   string              `json:"alert_title"`
	AlertMessage string              `json:"alert_message"`
	Timeout      bool                `json:"timeout"`
	TimeoutAfter int                 `json:"timeout_after"`
	Time         time.Time           `json:"time"`
	Completed    bool                `json:"completed"`

	Responses      models.Responses `json:"responses,omitempty"`
	ResponseTime   string           `json:"response_time,omitempty"`
	ResponseTimeMs int64            `json:"response_time_ms,omitempty"`
	AlertTime      string           `json:"alert_time,omitempty"`
}

// Completion carries what an engine records when a task is finished.
type Completion struct {
	Responses models.Responses
	At        time.Time
}

// Complete returns a copy of t marked completed at c.At.
func (t Task) Complete(c Completion) Task {
	t.Completed = true
	t.Responses = c.Responses
	t.AlertTime = t.Time.Format(time.RFC3339)
	t.ResponseTime = c.At.Format(time.RFC3339)
	t.ResponseTimeMs = c.At.UnixMilli()
	return t
}

// Find returns the position of the task with the given routing id.
func Find(all []Task, taskID int) (int, bool) {
	for i, t := range all {
		if t.TaskID == taskID {
			return i, true
		}
	}
	return -1, false
}

// Clone copies the list so callers can mutate it without touching the original.
func Clone(all []Task) []Task {
	out := make([]Task, len(all))
	copy(out, all)
	return out
}
