package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

var reviewableStatuses = []string{
	models.SubmissionStatusPending,
	models.SubmissionStatusAIChecked,
	models.SubmissionStatusTeacherReviewing,
}

// finalizableFrom allows any open status plus the target itself, so repeating a decision stays idempotent.
func finalizableFrom(target string) []string {
	from := make([]string, 0, len(reviewableStatuses)+1)
	from = append(from, reviewableStatuses...)
	return append(from, target)
}

// ReviewService records teacher decisions and task corrections.
type ReviewService interface {
	Review(ctx context.Context, submissionID, teacherID uint, req dto.ReviewRequest) (dto.SubmissionResponse, error)
	UpdateTask(ctx context.Context, taskID, teacherID uint, req dto.TaskUpdateRequest) (dto.TaskResponse, error)
}

type reviewService struct {
	content     repository.ContentRepository
	submissions repository.SubmissionRepository
	activity    ActivityRecorder
	events      EventPublisher
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReviewService constructs the review finalizer.
func NewReviewService(content repository.ContentRepository, submissions repository.SubmissionRepository, activity ActivityRecorder, publisher EventPublisher, validate *validator.Validate, logger zerolog.Logger) ReviewService {
	return &reviewService{
		content:     content,
		submissions: submissions,
		activity:    activity,
		events:      publisherOrNoop(publisher),
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-classroom-api/internal/service/review"),
		logger:      logger.With().Str("component", "review_service").Logger(),
		now:         time.Now,
	}
}

func (s *reviewService) Review(ctx context.Context, submissionID, teacherID uint, req dto.ReviewRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, err
	}
	decision := strings.ToLower(strings.TrimSpace(req.Decision))

	ctx, span := s.tracer.Start(ctx, "review.finalize", trace.WithAttributes(
		attribute.Int64("review.submission_id", int64(submissionID)),
		attribute.String("review.decision", decision),
	))
	defer span.End()

	submission, err := s.loadOwned(ctx, submissionID, teacherID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	courseID := submission.Subchapter.Chapter.CourseID

	switch decision {
	case dto.ReviewDecisionDraft:
		if submission.IsTerminal() {
			return dto.SubmissionResponse{}, ErrSubmissionFinalized
		}
		if err := s.submissions.TransitionStatus(ctx, submissionID, reviewableStatuses, models.SubmissionStatusTeacherReviewing); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return dto.SubmissionResponse{}, ErrSubmissionFinalized
			}
			return dto.SubmissionResponse{}, err
		}
		s.activity.Record(ctx, ActivityEntry{
			ActorID:    teacherID,
			ActorRole:  models.RoleTeacher,
			Action:     ActionSubmissionDraft,
			CourseID:   courseID,
			EntityType: "submission",
			EntityID:   submissionID,
		})

	case dto.ReviewDecisionApprove, dto.ReviewDecisionReject:
		approved := decision == dto.ReviewDecisionApprove
		status := models.SubmissionStatusRejected
		if approved {
			status = models.SubmissionStatusApproved
		}

		if submission.IsTerminal() && submission.Status != status {
			return dto.SubmissionResponse{}, ErrSubmissionFinalized
		}

		now := s.now()
		params := repository.FinalizeParams{
			SubmissionID: submissionID,
			From:         finalizableFrom(status),
			Status:       status,
			Review: models.Review{
				TeacherID:      teacherID,
				Approved:       approved,
				GeneralComment: s.clean(req.Comment),
				ReviewedAt:     now,
			},
		}
		if approved && submission.Status != models.SubmissionStatusApproved {
			params.Unlock, err = s.progressUnlock(ctx, submission, now)
			if err != nil {
				return dto.SubmissionResponse{}, err
			}
		}

		unlocked, err := s.submissions.Finalize(ctx, params)
		if err != nil {
			span.RecordError(err)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.SubmissionResponse{}, ErrSubmissionNotFound
			}
			if errors.Is(err, repository.ErrStatusConflict) {
				return dto.SubmissionResponse{}, ErrSubmissionFinalized
			}
			return dto.SubmissionResponse{}, err
		}
		if unlocked {
			observability.VisibilityChanges().WithLabelValues("progress").Inc()
			s.logger.Info().
				Uint("student_id", submission.StudentID).
				Uint("subchapter_id", params.Unlock.SubchapterID).
				Msg("next subchapter unlocked by approval")
		}

		s.activity.Record(ctx, ActivityEntry{
			ActorID:    teacherID,
			ActorRole:  models.RoleTeacher,
			Action:     ActionSubmissionFinal,
			CourseID:   courseID,
			EntityType: "submission",
			EntityID:   submissionID,
			Metadata:   map[string]interface{}{"approved": approved, "unlocked_next": unlocked},
		})
		s.events.Publish(ctx, events.SubmissionReviewed, map[string]interface{}{
			"submission_id": submissionID,
			"student_id":    submission.StudentID,
			"approved":      approved,
		})

	default:
		return dto.SubmissionResponse{}, ErrUnknownDecision
	}

	s.logger.Info().Uint("submission_id", submissionID).Uint("teacher_id", teacherID).Str("decision", decision).Msg("submission reviewed")

	updated, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(updated), nil
}

// progressUnlock returns the unlock for the sibling after the approved subchapter, if it opens on completion.
func (s *reviewService) progressUnlock(ctx context.Context, submission models.Submission, now time.Time) (*repository.ProgressUnlock, error) {
	if !unlocksAfterCompletion(submission.Subchapter.Node()) {
		return nil, nil
	}

	next, err := s.content.NextSubchapter(ctx, submission.Subchapter)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !unlocksAfterCompletion(next.Node()) {
		return nil, nil
	}

	return &repository.ProgressUnlock{
		StudentID:    submission.StudentID,
		SubchapterID: next.ID,
		CanSubmit:    next.AllowSubmissions,
		At:           now,
	}, nil
}

func (s *reviewService) UpdateTask(ctx context.Context, taskID, teacherID uint, req dto.TaskUpdateRequest) (dto.TaskResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.TaskResponse{}, err
	}

	task, err := s.submissions.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TaskResponse{}, ErrTaskNotFound
		}
		return dto.TaskResponse{}, err
	}

	submission, err := s.loadOwned(ctx, task.SubmissionID, teacherID)
	if err != nil {
		return dto.TaskResponse{}, err
	}
	if submission.IsTerminal() {
		return dto.TaskResponse{}, ErrSubmissionFinalized
	}

	if req.PointsEarned != nil {
		if *req.PointsEarned > task.MaxPoints {
			return dto.TaskResponse{}, ErrPointsExceedMax
		}
		task.PointsEarned = *req.PointsEarned
	}
	if req.TeacherComment != nil {
		comment := s.clean(*req.TeacherComment)
		task.TeacherComment = &comment
	}
	task.TeacherEdited = true

	if err := s.submissions.UpdateTask(ctx, &task); err != nil {
		return dto.TaskResponse{}, err
	}

	s.activity.Record(ctx, ActivityEntry{
		ActorID:    teacherID,
		ActorRole:  models.RoleTeacher,
		Action:     ActionTaskEdited,
		CourseID:   submission.Subchapter.Chapter.CourseID,
		EntityType: "task",
		EntityID:   task.ID,
		Metadata:   map[string]interface{}{"submission_id": submission.ID, "points_earned": task.PointsEarned},
	})

	return dto.NewTaskResponse(task), nil
}

func (s *reviewService) loadOwned(ctx context.Context, submissionID, teacherID uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	if submission.Subchapter.Chapter.Course.TeacherID != teacherID {
		return models.Submission{}, ErrNotCourseTeacher
	}
	return submission, nil
}

func (s *reviewService) clean(input string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(input))
}
