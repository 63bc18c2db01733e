package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWritePrometheus(t *testing.T) {
	before := tasksCompleted.Load()
	IncTaskCompleted()
	ObserveReminders(12)

	rec := httptest.NewRecorder()
	WritePrometheus(rec)

	body := rec.Body.String()
	assert.Equal(t, "text/plain; version=0.0.4", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "# TYPE studyrunner_reminders_scheduled gauge\n")
	assert.Contains(t, body, "studyrunner_reminders_scheduled 12\n")
	assert.Equal(t, before+1, tasksCompleted.Load())
	assert.Equal(t, len(all)*3, strings.Count(body, "\n"))
}
