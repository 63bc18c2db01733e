// Package protocol is the in-memory model of a downloaded study definition.
// Values are treated as immutable once parsed; per-execution view state lives
// in the engines, never here.
package protocol

type Study struct {
	Properties Properties `json:"properties"`
	Modules    []Module   `json:"modules"`
}

type Properties struct {
	StudyID      string   `json:"study_id"`
	StudyName    string   `json:"study_name,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	BannerURL    string   `json:"banner_url,omitempty"`
	SupportEmail string   `json:"support_email,omitempty"`
	SupportURL   string   `json:"support_url,omitempty"`
	Ethics       string   `json:"ethics,omitempty"`
	PLS          string   `json:"pls,omitempty"`
	EmptyMessage string   `json:"empty_message,omitempty"`
	PostURL      string   `json:"post_url,omitempty"`
	Conditions   []string `json:"conditions,omitempty"`
	Cache        bool     `json:"cache"`
}

type ModuleType string

const (
	ModuleSurvey ModuleType = "survey"
	ModuleInfo   ModuleType = "info"
	ModuleVideo  ModuleType = "video"
	ModuleAudio  ModuleType = "audio"
	ModulePVT    ModuleType = "pvt"
)

// RunsInSurveyEngine reports whether the module is walked section by section.
func (t ModuleType) RunsInSurveyEngine() bool {
	switch t {
	case ModuleSurvey, ModuleInfo, ModuleVideo, ModuleAudio:
		return true
	default:
		return false
	}
}

// AllConditions marks a module shared by every condition.
const AllConditions = "*"

type Module struct {
	Type        ModuleType `json:"type"`
	Name        string     `json:"name"`
	SubmitText  string     `json:"submit_text,omitempty"`
	Condition   string     `json:"condition,omitempty"`
	Alerts      Alerts     `json:"alerts"`
	Sections    []Section  `json:"sections,omitempty"`
	UUID        string     `json:"uuid"`
	UnlockAfter []string   `json:"unlock_after"`
	Shuffle     bool       `json:"shuffle"`

	// Reaction-time parameters, in milliseconds.
	Trials      int  `json:"trials,omitempty"`
	MinWaiting  int  `json:"min_waiting,omitempty"`
	MaxWaiting  int  `json:"max_waiting,omitempty"`
	MaxReaction int  `json:"max_reaction,omitempty"`
	Show        bool `json:"show,omitempty"`
	Exit        bool `json:"exit,omitempty"`
}

// AppliesTo reports whether a participant assigned to condition receives this module.
func (m Module) AppliesTo(condition string) bool {
	return m.Condition == "" || m.Condition == AllConditions || condition == "" || m.Condition == condition
}

// Alerts is the scheduling rule of a module. Offsets and durations are in
// days, random intervals and timeouts in minutes.
type Alerts struct {
	Title          string      `json:"title"`
	Message        string      `json:"message"`
	StartOffset    int         `json:"start_offset"`
	Duration       int         `json:"duration"`
	Times          []TimeOfDay `json:"times"`
	Random         bool        `json:"random"`
	RandomInterval int         `json:"random_interval"`
	Sticky         bool        `json:"sticky"`
	StickyLabel    string      `json:"sticky_label,omitempty"`
	Timeout        bool        `json:"timeout"`
	TimeoutAfter   int         `json:"timeout_after"`
}

type TimeOfDay struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type Section struct {
	Name      string     `json:"name"`
	Shuffle   bool       `json:"shuffle"`
	Questions []Question `json:"questions"`
}

