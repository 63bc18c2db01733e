package survey

import (
	"net/url"
	"strings"
)

// Sanitizer vets a media or embed source before it is handed to the renderer.
// An empty result means the source must not be rendered.
type Sanitizer interface {
	Sanitize(src string) string
}

// SchemeSanitizer accepts absolute http(s) URLs and local file paths.
type SchemeSanitizer struct{}

func (SchemeSanitizer) Sanitize(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http", "https", "file":
		return u.String()
	case "":
		if strings.HasPrefix(src, "/") {
			return src
		}
	}
	return ""
}

// withParticipant appends the participant id as the uuid query parameter.
func withParticipant(src, participant string) string {
	u, err := url.Parse(src)
	if err != nil {
		return src + "?uuid=" + url.QueryEscape(participant)
	}
	q := u.Query()
	q.Set("uuid", participant)
	u.RawQuery = q.Encode()
	return u.String()
}
