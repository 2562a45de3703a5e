package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

// VisibilityService lets a course teacher inspect and override a student's visibility.
type VisibilityService interface {
	Get(ctx context.Context, teacherID, courseID, studentID uint) (dto.VisibilityStateResponse, error)
	Apply(ctx context.Context, teacherID, courseID, studentID uint, req dto.VisibilityUpdateRequest) (dto.VisibilityUpdateResponse, error)
}

type visibilityService struct {
	content     repository.ContentRepository
	enrollments repository.EnrollmentRepository
	visibility  repository.VisibilityRepository
	activity    ActivityRecorder
	events      EventPublisher
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewVisibilityService constructs the visibility override service.
func NewVisibilityService(content repository.ContentRepository, enrollments repository.EnrollmentRepository, visibility repository.VisibilityRepository, activity ActivityRecorder, publisher EventPublisher, validate *validator.Validate, logger zerolog.Logger) VisibilityService {
	return &visibilityService{
		content:     content,
		enrollments: enrollments,
		visibility:  visibility,
		activity:    activity,
		events:      publisherOrNoop(publisher),
		validator:   validate,
		logger:      logger.With().Str("component", "visibility_service").Logger(),
		now:         time.Now,
	}
}

func (s *visibilityService) authorize(ctx context.Context, teacherID, courseID, studentID uint) error {
	course, err := s.content.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCourseNotFound
		}
		return err
	}
	if course.TeacherID != teacherID {
		return ErrNotCourseTeacher
	}
	if _, err := s.enrollments.Get(ctx, studentID, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotEnrolled
		}
		return err
	}
	return nil
}

func (s *visibilityService) Get(ctx context.Context, teacherID, courseID, studentID uint) (dto.VisibilityStateResponse, error) {
	if err := s.authorize(ctx, teacherID, courseID, studentID); err != nil {
		return dto.VisibilityStateResponse{}, err
	}

	chapters, subchapters, err := s.visibility.ListForCourse(ctx, courseID, studentID)
	if err != nil {
		return dto.VisibilityStateResponse{}, err
	}
	return dto.NewVisibilityStateResponse(studentID, courseID, chapters, subchapters), nil
}

// Apply commits the whole batch or nothing.
func (s *visibilityService) Apply(ctx context.Context, teacherID, courseID, studentID uint, req dto.VisibilityUpdateRequest) (dto.VisibilityUpdateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.VisibilityUpdateResponse{}, err
	}
	if err := s.authorize(ctx, teacherID, courseID, studentID); err != nil {
		return dto.VisibilityUpdateResponse{}, err
	}
	if err := s.checkTargets(ctx, courseID, req.Changes); err != nil {
		return dto.VisibilityUpdateResponse{}, err
	}

	now := s.now()
	applied := 0
	err := s.visibility.Transaction(ctx, func(tx repository.VisibilityRepository) error {
		applied = 0
		for _, change := range req.Changes {
			var (
				changed bool
				err     error
			)
			switch change.TargetType {
			case dto.VisibilityTargetChapter:
				changed, err = applyChapterChange(ctx, tx, studentID, change, now)
			case dto.VisibilityTargetSubchapter:
				changed, err = applySubchapterChange(ctx, tx, studentID, change, now)
			}
			if err != nil {
				return err
			}
			if changed {
				applied++
			}
		}
		return nil
	})
	if err != nil {
		return dto.VisibilityUpdateResponse{}, err
	}

	observability.VisibilityChanges().WithLabelValues("teacher").Add(float64(applied))
	s.activity.Record(ctx, ActivityEntry{
		ActorID:    teacherID,
		ActorRole:  models.RoleTeacher,
		Action:     ActionVisibilityUpdated,
		CourseID:   courseID,
		EntityType: "student",
		EntityID:   studentID,
		Metadata:   map[string]interface{}{"changes": len(req.Changes), "applied": applied},
	})
	s.events.Publish(ctx, events.VisibilityChanged, map[string]interface{}{
		"course_id":  courseID,
		"student_id": studentID,
		"applied":    applied,
	})

	s.logger.Info().
		Uint("teacher_id", teacherID).
		Uint("course_id", courseID).
		Uint("student_id", studentID).
		Int("applied", applied).
		Msg("visibility overrides applied")

	return dto.VisibilityUpdateResponse{Applied: applied}, nil
}

func (s *visibilityService) checkTargets(ctx context.Context, courseID uint, changes []dto.VisibilityChange) error {
	chapters, err := s.content.ListChapters(ctx, courseID)
	if err != nil {
		return err
	}
	subchapters, err := s.content.ListSubchapters(ctx, courseID)
	if err != nil {
		return err
	}

	chapterIDs := make(map[uint]struct{}, len(chapters))
	for _, chapter := range chapters {
		chapterIDs[chapter.ID] = struct{}{}
	}
	subchapterIDs := make(map[uint]struct{}, len(subchapters))
	for _, sub := range subchapters {
		subchapterIDs[sub.ID] = struct{}{}
	}

	for _, change := range changes {
		known := chapterIDs
		if change.TargetType == dto.VisibilityTargetSubchapter {
			known = subchapterIDs
		}
		if _, ok := known[change.TargetID]; !ok {
			return ErrForeignTarget
		}
	}
	return nil
}

// applyChapterChange ignores CanSubmit: chapters are never submittable.
func applyChapterChange(ctx context.Context, tx repository.VisibilityRepository, studentID uint, change dto.VisibilityChange, now time.Time) (bool, error) {
	if change.IsVisible == nil {
		return false, nil
	}

	row, err := tx.GetChapter(ctx, change.TargetID, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.ChapterVisibility{ChapterID: change.TargetID, StudentID: studentID}
	} else if err != nil {
		return false, err
	}

	row.SetVisible(*change.IsVisible, now)
	return true, tx.SaveChapter(ctx, &row)
}

func applySubchapterChange(ctx context.Context, tx repository.VisibilityRepository, studentID uint, change dto.VisibilityChange, now time.Time) (bool, error) {
	if change.IsVisible == nil && change.CanSubmit == nil {
		return false, nil
	}

	row, err := tx.GetSubchapter(ctx, change.TargetID, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.SubchapterVisibility{SubchapterID: change.TargetID, StudentID: studentID}
	} else if err != nil {
		return false, err
	}

	if change.IsVisible != nil {
		row.SetVisible(*change.IsVisible, now)
	}
	if change.CanSubmit != nil {
		row.CanSubmit = *change.CanSubmit
	}
	if !row.IsVisible {
		if change.CanSubmit != nil && *change.CanSubmit {
			return false, ErrSubmitWhileHidden
		}
		row.CanSubmit = false
	}

	return true, tx.SaveSubchapter(ctx, &row)
}
