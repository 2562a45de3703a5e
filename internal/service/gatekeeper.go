package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

// Gatekeeper decides whether a student may hand in work for a subchapter.
type Gatekeeper struct {
	content     repository.ContentRepository
	enrollments repository.EnrollmentRepository
	visibility  repository.VisibilityRepository
}

// NewGatekeeper constructs a Gatekeeper.
func NewGatekeeper(content repository.ContentRepository, enrollments repository.EnrollmentRepository, visibility repository.VisibilityRepository) *Gatekeeper {
	return &Gatekeeper{content: content, enrollments: enrollments, visibility: visibility}
}

// Admit runs the checks from existence to current permission and returns the loaded subchapter.
// Denials are *AccessError values that differ only by Code.
func (g *Gatekeeper) Admit(ctx context.Context, studentID, subchapterID uint) (models.Subchapter, error) {
	subchapter, err := g.content.GetSubchapter(ctx, subchapterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Subchapter{}, ErrSubchapterNotFound
		}
		return models.Subchapter{}, err
	}

	if _, err := g.enrollments.Get(ctx, studentID, subchapter.Chapter.CourseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Subchapter{}, denyAccess(AccessNotEnrolled)
		}
		return models.Subchapter{}, err
	}

	state, err := g.visibility.GetSubchapter(ctx, subchapterID, studentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Subchapter{}, err
	}
	if err != nil || !state.IsVisible {
		return models.Subchapter{}, denyAccess(AccessNotVisible)
	}

	// Overrides are independent rows, so the chapter has to be checked again here.
	chapterState, err := g.visibility.GetChapter(ctx, subchapter.ChapterID, studentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Subchapter{}, err
	}
	if err != nil || !chapterState.IsVisible {
		return models.Subchapter{}, denyAccess(AccessChapterHidden)
	}

	if !subchapter.AllowSubmissions {
		return models.Subchapter{}, denyAccess(AccessSubmissionsDisabled)
	}

	if !state.CanSubmit {
		return models.Subchapter{}, denyAccess(AccessSubmissionLocked)
	}

	return subchapter, nil
}
