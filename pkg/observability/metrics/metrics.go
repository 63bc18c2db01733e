package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

var (
	enrolments          atomic.Int64
	enrolmentFailures   atomic.Int64
	tasksCompleted      atomic.Int64
	remindersScheduled  atomic.Int64
	uploadsPublished    atomic.Int64
	uploadsQueued       atomic.Int64
	validationFailures  atomic.Int64
	reactionTrials      atomic.Int64
	submissionsIngested atomic.Int64
)

func IncEnrolment()          { enrolments.Add(1) }
func IncEnrolmentFailure()   { enrolmentFailures.Add(1) }
func IncTaskCompleted()      { tasksCompleted.Add(1) }
func IncUploadPublished()    { uploadsPublished.Add(1) }
func IncUploadQueued()       { uploadsQueued.Add(1) }
func IncValidationFailure()  { validationFailures.Add(1) }
func IncReactionTrial()      { reactionTrials.Add(1) }
func IncSubmissionIngested() { submissionsIngested.Add(1) }

// ObserveReminders records the size of the most recently scheduled window.
func ObserveReminders(n int) { remindersScheduled.Store(int64(n)) }

type metric struct {
	name  string
	help  string
	kind  string
	value *atomic.Int64
}

var all = []metric{
	{"studyrunner_enrolments_total", "Number of successful enrolments.", "counter", &enrolments},
	{"studyrunner_enrolment_failures_total", "Number of failed enrolment attempts.", "counter", &enrolmentFailures},
	{"studyrunner_tasks_completed_total", "Number of tasks marked completed.", "counter", &tasksCompleted},
	{"studyrunner_reminders_scheduled", "Number of reminders in the current window.", "gauge", &remindersScheduled},
	{"studyrunner_uploads_published_total", "Number of payloads published to Kafka.", "counter", &uploadsPublished},
	{"studyrunner_uploads_queued_total", "Number of payloads queued locally after a failed publish.", "counter", &uploadsQueued},
	{"studyrunner_survey_validation_failures_total", "Number of section submits blocked by missing answers.", "counter", &validationFailures},
	{"studyrunner_reaction_trials_total", "Number of scored reaction-time trials.", "counter", &reactionTrials},
	{"studyrunner_sink_submissions_total", "Number of events stored by the response sink.", "counter", &submissionsIngested},
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	write(w)
}

func write(w io.Writer) {
	for _, m := range all {
		fmt.Fprintf(w, "# HELP %s %s\n", m.name, m.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", m.name, m.kind)
		fmt.Fprintf(w, "%s %d\n", m.name, m.value.Load())
	}
}
