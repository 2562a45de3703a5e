package service

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the classroom services wraps one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrUpstream     = errors.New("upstream failure")
)

var (
	ErrCourseNotFound      = fmt.Errorf("course %w", ErrNotFound)
	ErrSubchapterNotFound  = fmt.Errorf("subchapter %w", ErrNotFound)
	ErrSubmissionNotFound  = fmt.Errorf("submission %w", ErrNotFound)
	ErrTaskNotFound        = fmt.Errorf("task %w", ErrNotFound)
	ErrStudentNotEnrolled  = fmt.Errorf("student is not enrolled in the course: %w", ErrNotFound)
	ErrAlreadyEnrolled     = fmt.Errorf("already enrolled: %w", ErrInvalidState)
	ErrNotCourseTeacher    = fmt.Errorf("course belongs to another teacher: %w", ErrForbidden)
	ErrNotSubmissionOwner  = fmt.Errorf("submission belongs to another student: %w", ErrForbidden)
	ErrSubmissionFinalized = fmt.Errorf("submission already finalized: %w", ErrInvalidState)
	ErrSubmissionLockedIn  = fmt.Errorf("submission can no longer be deleted: %w", ErrInvalidState)
	ErrNoImages            = fmt.Errorf("at least one image is required: %w", ErrValidation)
	ErrTooManyImages       = fmt.Errorf("too many images: %w", ErrValidation)
	ErrFileRequired        = fmt.Errorf("pdf file is required: %w", ErrValidation)
	ErrUnknownUploadMode   = fmt.Errorf("upload mode must be pdf or images: %w", ErrValidation)
	ErrUnknownDecision     = fmt.Errorf("decision must be draft, approve or reject: %w", ErrValidation)
	ErrPointsExceedMax     = fmt.Errorf("points earned exceed max points: %w", ErrValidation)
	ErrForeignTarget       = fmt.Errorf("visibility target is not part of the course: %w", ErrValidation)
	ErrSubmitWhileHidden   = fmt.Errorf("can_submit requires a visible subchapter: %w", ErrValidation)
)

// Access denial codes reported by the submission gatekeeper.
const (
	AccessNotEnrolled         = "not_enrolled"
	AccessNotVisible          = "not_visible"
	AccessSubmissionsDisabled = "submissions_disabled"
	AccessSubmissionLocked    = "submission_locked"
	AccessChapterHidden       = "chapter_hidden"
)

// AccessError is returned when a student may not act on a subchapter.
// The message stays generic so callers cannot infer other students' state; Code tells the reason.
type AccessError struct {
	Code string
}

func (e *AccessError) Error() string {
	return "access denied"
}

// Unwrap exposes the Forbidden category to errors.Is.
func (e *AccessError) Unwrap() error {
	return ErrForbidden
}

func denyAccess(code string) error {
	return &AccessError{Code: code}
}

// AccessCode extracts the gatekeeper code from err, or returns an empty string.
func AccessCode(err error) string {
	var accessErr *AccessError
	if errors.As(err, &accessErr) {
		return accessErr.Code
	}
	return ""
}
