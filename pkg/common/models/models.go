package models

import (
	"time"
)

// Event is the envelope published to Kafka by the upload client and read back
// by the response sink.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // survey_data, reaction_times, page_visit
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

const (
	EventSurveyData    = "survey_data"
	EventReactionTimes = "reaction_times"
	EventPageVisit     = "page_visit"
)

// Responses maps question ids to final answers.
type Responses map[string]Value

// SurveyData is the submission envelope for a completed survey module.
type SurveyData struct {
	ModuleIndex      int       `json:"module_index"`
	ModuleName       string    `json:"module_name"`
	Responses        Responses `json:"responses"`
	ResponseTime     string    `json:"response_time"`
	ResponseTimeInMs int64     `json:"response_time_in_ms"`
	AlertTime        string    `json:"alert_time"`
}

// ReactionTimeData is posted when a reaction-time module is submitted.
type ReactionTimeData struct {
	Name    string `json:"name"`
	Entries []int  `json:"entries"`
	Time    string `json:"time"`
}

type LogEvent struct {
	Timestamp    string `json:"timestamp"`
	Milliseconds int64  `json:"milliseconds"`
	Page         string `json:"page"`
	Event        string `json:"event"`
	ModuleIndex  int    `json:"module_index"`
}

const (
	PageHome   = "home"
	PageSurvey = "survey"
	PagePVT    = "pvt"

	VisitEntry   = "entry"
	VisitExit    = "exit"
	VisitSubmit  = "submit"
	VisitEnrol   = "enrol"
	VisitUnenrol = "unenrol"
)

// NewLogEvent stamps a page visit at t. Module index -1 marks pages that are
// not tied to a module.
func NewLogEvent(t time.Time, page, event string, moduleIndex int) LogEvent {
	return LogEvent{
		Timestamp:    t.Format(time.RFC3339),
		Milliseconds: t.UnixMilli(),
		Page:         page,
		Event:        event,
		ModuleIndex:  moduleIndex,
	}
}
