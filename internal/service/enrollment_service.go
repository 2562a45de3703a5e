package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

// EnrollmentService enrols students and renders their view of a course.
type EnrollmentService interface {
	Enroll(ctx context.Context, studentID, courseID uint) (dto.EnrollmentResponse, error)
	CourseContent(ctx context.Context, studentID, courseID uint) (dto.CourseContentResponse, error)
}

type enrollmentService struct {
	content     repository.ContentRepository
	enrollments repository.EnrollmentRepository
	visibility  repository.VisibilityRepository
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(content repository.ContentRepository, enrollments repository.EnrollmentRepository, visibility repository.VisibilityRepository, logger zerolog.Logger) EnrollmentService {
	return &enrollmentService{
		content:     content,
		enrollments: enrollments,
		visibility:  visibility,
		tracer:      otel.Tracer("github.com/noah-isme/gema-classroom-api/internal/service/enrollment"),
		logger:      logger.With().Str("component", "enrollment_service").Logger(),
		now:         time.Now,
	}
}

func (s *enrollmentService) Enroll(ctx context.Context, studentID, courseID uint) (dto.EnrollmentResponse, error) {
	attrs := []attribute.KeyValue{
		attribute.Int64("enrollment.course_id", int64(courseID)),
		attribute.Int64("enrollment.student_id", int64(studentID)),
	}
	ctx, span := s.tracer.Start(ctx, "enrollment.enroll", trace.WithAttributes(attrs...))
	defer span.End()

	if _, err := s.content.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EnrollmentResponse{}, ErrCourseNotFound
		}
		return dto.EnrollmentResponse{}, err
	}

	if _, err := s.enrollments.Get(ctx, studentID, courseID); err == nil {
		return dto.EnrollmentResponse{}, ErrAlreadyEnrolled
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.EnrollmentResponse{}, err
	}

	chapters, err := s.content.ListChapters(ctx, courseID)
	if err != nil {
		return dto.EnrollmentResponse{}, fmt.Errorf("list chapters: %w", err)
	}
	subchapters, err := s.content.ListSubchapters(ctx, courseID)
	if err != nil {
		return dto.EnrollmentResponse{}, fmt.Errorf("list subchapters: %w", err)
	}

	now := s.now()
	chapterRows, subchapterRows := materializeVisibility(studentID, chapters, subchapters, now)

	enrollment := models.Enrollment{StudentID: studentID, CourseID: courseID, EnrolledAt: now}
	if err := s.enrollments.CreateWithVisibility(ctx, &enrollment, chapterRows, subchapterRows); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			return dto.EnrollmentResponse{}, ErrAlreadyEnrolled
		}
		span.RecordError(err)
		return dto.EnrollmentResponse{}, fmt.Errorf("create enrollment: %w", err)
	}

	response := dto.EnrollmentResponse{
		ID:         enrollment.ID,
		StudentID:  studentID,
		CourseID:   courseID,
		EnrolledAt: enrollment.EnrolledAt,
	}
	for _, row := range chapterRows {
		if row.IsVisible {
			response.VisibleChapters++
		}
	}
	for _, row := range subchapterRows {
		if row.IsVisible {
			response.VisibleSubchapters++
		}
	}
	observability.VisibilityChanges().WithLabelValues("enrollment").Add(float64(response.VisibleChapters + response.VisibleSubchapters))

	s.logger.Info().
		Uint("student_id", studentID).
		Uint("course_id", courseID).
		Int("chapters", len(chapterRows)).
		Int("subchapters", len(subchapterRows)).
		Msg("student enrolled")

	return response, nil
}

// materializeVisibility evaluates every node of a course for a new student.
// Subchapters must be ordered by chapter, then by their own order.
func materializeVisibility(studentID uint, chapters []models.Chapter, subchapters []models.Subchapter, now time.Time) ([]models.ChapterVisibility, []models.SubchapterVisibility) {
	byChapter := make(map[uint][]models.Subchapter, len(chapters))
	for _, sub := range subchapters {
		byChapter[sub.ChapterID] = append(byChapter[sub.ChapterID], sub)
	}

	chapterRows := make([]models.ChapterVisibility, 0, len(chapters))
	subchapterRows := make([]models.SubchapterVisibility, 0, len(subchapters))

	for _, chapter := range chapters {
		chapterDecision := EvaluateVisibility(VisibilityInput{Node: chapter.Node(), Now: now, ParentVisible: true})
		chapterRows = append(chapterRows, models.ChapterVisibility{
			ChapterID:  chapter.ID,
			StudentID:  studentID,
			IsVisible:  chapterDecision.Visible,
			UnlockedAt: chapterDecision.UnlockedAt,
		})

		for _, sub := range byChapter[chapter.ID] {
			decision := EvaluateVisibility(VisibilityInput{Node: sub.Node(), Now: now, ParentVisible: chapterDecision.Visible})
			subchapterRows = append(subchapterRows, models.SubchapterVisibility{
				SubchapterID: sub.ID,
				StudentID:    studentID,
				IsVisible:    decision.Visible,
				CanSubmit:    decision.Visible && sub.AllowSubmissions,
				UnlockedAt:   decision.UnlockedAt,
			})
		}
	}

	return chapterRows, subchapterRows
}

func (s *enrollmentService) CourseContent(ctx context.Context, studentID, courseID uint) (dto.CourseContentResponse, error) {
	course, err := s.content.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CourseContentResponse{}, ErrCourseNotFound
		}
		return dto.CourseContentResponse{}, err
	}

	if _, err := s.enrollments.Get(ctx, studentID, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CourseContentResponse{}, denyAccess(AccessNotEnrolled)
		}
		return dto.CourseContentResponse{}, err
	}

	chapters, err := s.content.ListChapters(ctx, courseID)
	if err != nil {
		return dto.CourseContentResponse{}, err
	}
	subchapters, err := s.content.ListSubchapters(ctx, courseID)
	if err != nil {
		return dto.CourseContentResponse{}, err
	}
	chapterRows, subchapterRows, err := s.visibility.ListForCourse(ctx, courseID, studentID)
	if err != nil {
		return dto.CourseContentResponse{}, err
	}

	chapterState := make(map[uint]models.ChapterVisibility, len(chapterRows))
	for _, row := range chapterRows {
		chapterState[row.ChapterID] = row
	}
	subchapterState := make(map[uint]models.SubchapterVisibility, len(subchapterRows))
	for _, row := range subchapterRows {
		subchapterState[row.SubchapterID] = row
	}

	response := dto.CourseContentResponse{
		Course:   dto.NewCourseLite(course),
		Chapters: make([]dto.ChapterContent, 0, len(chapters)),
	}
	index := make(map[uint]int, len(chapters))
	for _, chapter := range chapters {
		state := chapterState[chapter.ID]
		index[chapter.ID] = len(response.Chapters)
		response.Chapters = append(response.Chapters, dto.ChapterContent{
			ID:          chapter.ID,
			Title:       chapter.Title,
			Order:       chapter.Order,
			IsVisible:   state.IsVisible,
			UnlockedAt:  state.UnlockedAt,
			Subchapters: []dto.SubchapterContent{},
		})
	}

	for _, sub := range subchapters {
		pos, ok := index[sub.ChapterID]
		if !ok {
			continue
		}
		chapter := &response.Chapters[pos]
		state := subchapterState[sub.ID]
		visible := chapter.IsVisible && state.IsVisible

		item := dto.SubchapterContent{
			ID:               sub.ID,
			Title:            sub.Title,
			Order:            sub.Order,
			IsVisible:        visible,
			CanSubmit:        visible && state.CanSubmit && sub.AllowSubmissions,
			AllowSubmissions: sub.AllowSubmissions,
		}
		if visible {
			item.UnlockedAt = state.UnlockedAt
			materials, err := s.content.ListMaterials(ctx, sub.ID)
			if err != nil {
				return dto.CourseContentResponse{}, err
			}
			item.Materials = dto.NewMaterialResponses(materials)
		}
		chapter.Subchapters = append(chapter.Subchapters, item)
	}

	return response, nil
}
