package enrol

import (
	"errors"
	"fmt"
)

var ErrAlreadyEnrolled = errors.New("already enrolled in a study")

// EnrolError is an enrolment failure. Network marks a download problem and
// Malformed marks content that is not a usable protocol; both may be set
// when the cause cannot be told apart.
type EnrolError struct {
	Source    Source
	Network   bool
	Malformed bool
	Err       error
}

func (e *EnrolError) Error() string {
	return fmt.Sprintf("enrol from %s %q: %v", e.Source.Kind, e.Source.Value, e.Err)
}

func (e *EnrolError) Unwrap() error { return e.Err }

// Message is the text shown to the participant.
func (e *EnrolError) Message() string {
	const prefix = "We couldn't load your study."
	qr := e.Source.Kind == SourceQR

	if e.Source.Kind == SourceStudyID {
		return prefix + " The study ID is an invalid or doesn't exist. Please check your internet connection and ensure you entered the correct study ID."
	}

	target := "entering the correct URL"
	if qr {
		target = "scanning the correct code"
	}

	switch {
	case qr && !e.Malformed && !e.Network:
		return prefix + " Please check your internet connection and ensure you are scanning the correct code."
	case qr && e.Malformed && e.Network:
		return prefix + " The downloaded study is an invalid. Please check your internet connection and ensure you are scanning the correct code."
	case e.Malformed && e.Network:
		return prefix + " The URL is the problem or the downloaded study is an invalid format. Please ensure you are " + target + "."
	case e.Malformed:
		return prefix + " The downloaded study is an invalid format. Please ensure you are " + target + "."
	case e.Network:
		return prefix + " The URL is an invalid. Please ensure you are " + target + "."
	default:
		return prefix
	}
}
