package protocol

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) *Study {
	t.Helper()
	data, err := os.ReadFile("testdata/study.json")
	require.NoError(t, err)
	study, err := Load(data)
	require.NoError(t, err)
	return study
}

func TestParseQuestionVariants(t *testing.T) {
	study := loadFixture(t)

	require.Len(t, study.Modules, 2)
	survey := study.Modules[0]
	require.Len(t, survey.Sections, 2)

	questions := survey.Sections[0].Questions
	assert.IsType(t, &Instruction{}, questions[0])
	assert.IsType(t, &YesNo{}, questions[1])
	assert.IsType(t, &Text{}, questions[2])
	assert.IsType(t, &Slider{}, questions[3])

	rule, ok := questions[2].Common().Hide()
	require.True(t, ok)
	assert.Equal(t, HideRule{TriggerID: "q-slept", Value: "true", If: true}, rule)

	multi, ok := survey.Sections[1].Questions[0].(*Multi)
	require.True(t, ok)
	assert.Equal(t, []string{"Apple", "Mango", "Pear"}, multi.Options)
	assert.False(t, multi.Radio)

	pvt := study.Modules[1]
	assert.Equal(t, ModulePVT, pvt.Type)
	assert.Equal(t, 500, pvt.MaxReaction)
	assert.True(t, pvt.Alerts.Random)
}

func TestParseRejectsUnknownQuestionType(t *testing.T) {
	raw := `{"properties":{"study_id":"X"},"modules":[{"type":"survey","uuid":"a","sections":[{"name":"s","questions":[{"id":"q","type":"hologram"}]}]}]}`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
}

func TestParseMissingTopLevelFields(t *testing.T) {
	cases := map[string]string{
		"no properties": `{"modules":[]}`,
		"no modules":    `{"properties":{"study_id":"X"}}`,
		"no study id":   `{"properties":{"study_name":"X"},"modules":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.False(t, perr.Syntax)
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse([]byte(`{"properties": `))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Syntax)
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestParseYAML(t *testing.T) {
	raw := `
properties:
  study_id: YAML01
modules:
  - type: survey
    name: Evening
    uuid: m-evening
    unlock_after: []
    alerts:
      start_offset: 0
      duration: 1
      times:
        - hours: 20
          minutes: 0
    sections:
      - name: Only
        questions:
          - id: q1
            type: yesno
            text: Tired?
          - id: q2
            type: text
            text: Why?
            hide_id: q1
            hide_value: false
            hide_if: true
`
	study, err := Load([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "YAML01", study.Properties.StudyID)
	rule, ok := study.Modules[0].Sections[0].Questions[1].Common().Hide()
	require.True(t, ok)
	assert.Equal(t, "false", rule.Value)
}

func TestValidateReportsProblems(t *testing.T) {
	study := loadFixture(t)
	study.Modules[1].UUID = "m-morning"
	study.Modules[0].UnlockAfter = []string{"missing"}

	err := study.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 2)
}

func TestUnlockCycles(t *testing.T) {
	study := &Study{Modules: []Module{
		{UUID: "a", UnlockAfter: []string{"c"}},
		{UUID: "b", UnlockAfter: []string{"a"}},
		{UUID: "c", UnlockAfter: []string{"b"}},
		{UUID: "d", UnlockAfter: []string{"a"}},
	}}
	cycles := study.UnlockCycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "c"}, cycles[0])

	acyclic := loadFixture(t)
	assert.Empty(t, acyclic.UnlockCycles())
}

func TestWithLocalMediaLeavesOriginalUntouched(t *testing.T) {
	study := loadFixture(t)
	urls := study.MediaURLs()
	assert.Equal(t, map[string]string{
		BannerKey:        "https://cdn.example.org/banner.png",
		"0/q-clip":       "https://cdn.example.org/clip.mp4",
		"0/q-clip:thumb": "https://cdn.example.org/clip.png",
	}, urls)

	local, err := study.WithLocalMedia(map[string]string{
		BannerKey:  "file:///media/banner.png",
		"0/q-clip": "file:///media/clip.mp4",
	})
	require.NoError(t, err)

	assert.Equal(t, "file:///media/banner.png", local.Properties.BannerURL)
	assert.Equal(t, "file:///media/clip.mp4", local.Modules[0].Sections[1].Questions[2].(*Media).Src)
	assert.Equal(t, "https://cdn.example.org/clip.png", local.Modules[0].Sections[1].Questions[2].(*Media).Thumb)
	assert.Equal(t, "https://cdn.example.org/clip.mp4", study.Modules[0].Sections[1].Questions[2].(*Media).Src)
}

func TestMediaKeysAreScopedByModule(t *testing.T) {
	study, err := Parse([]byte(`{
	  "properties": {"study_id": "M2"},
	  "modules": [
	    {"type": "survey", "uuid": "a", "sections": [{"name": "s", "questions": [
	      {"id": "clip", "type": "media", "subtype": "audio", "src": "https://h/a.mp4"}]}]},
	    {"type": "survey", "uuid": "b", "sections": [{"name": "s", "questions": [
	      {"id": "clip", "type": "media", "subtype": "audio", "src": "https://h/b.mp4"}]}]}
	  ]
	}`))
	require.NoError(t, err)

	urls := study.MediaURLs()
	assert.Equal(t, map[string]string{
		MediaKey(0, "clip"): "https://h/a.mp4",
		MediaKey(1, "clip"): "https://h/b.mp4",
	}, urls)

	local, err := study.WithLocalMedia(map[string]string{
		MediaKey(0, "clip"): "/cache/0_clip.mp4",
		MediaKey(1, "clip"): "/cache/1_clip.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, "/cache/0_clip.mp4", local.Modules[0].Sections[0].Questions[0].(*Media).Src)
	assert.Equal(t, "/cache/1_clip.mp4", local.Modules[1].Sections[0].Questions[0].(*Media).Src)
}

func TestEncodeRoundTrip(t *testing.T) {
	study := loadFixture(t)
	data, err := study.Encode()
	require.NoError(t, err)

	again, err := Load(data)
	require.NoError(t, err)

	first, _ := json.Marshal(study)
	second, _ := json.Marshal(again)
	assert.JSONEq(t, string(first), string(second))
}
