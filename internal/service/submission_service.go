package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/middleware"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
	"github.com/noah-isme/gema-classroom-api/pkg/document"
)

const submissionsDir = "submissions"

// DocumentAssembler produces the canonical PDF for a submission.
type DocumentAssembler interface {
	EnsurePDF(part document.Part) ([]byte, error)
	ImagesToPDF(ctx context.Context, images []document.Part) ([]byte, error)
	Merge(documents ...[]byte) ([]byte, error)
}

// FileStore is the durable blob storage for homework files.
type FileStore interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// Archiver mirrors stored documents to secondary storage.
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) (string, error)
}

// SubmissionConfig holds the tunable submission policy.
type SubmissionConfig struct {
	MaxImages           int
	HomeworkFileName    string
	AllowDeleteRejected bool
}

// Viewer identifies who is reading a submission.
type Viewer struct {
	ID   uint
	Role string
}

// SubmissionService orchestrates homework intake and the student and teacher read paths.
type SubmissionService interface {
	Submit(ctx context.Context, req dto.SubmitRequest) (dto.SubmissionResponse, error)
	ListForStudent(ctx context.Context, studentID uint, filter dto.SubmissionListFilter) ([]dto.SubmissionResponse, error)
	ListForCourse(ctx context.Context, teacherID, courseID uint, filter dto.SubmissionListFilter) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint, viewer Viewer) (dto.SubmissionResponse, error)
	Delete(ctx context.Context, id, studentID uint) error
}

// SubmissionDeps bundles the collaborators of the submission service.
type SubmissionDeps struct {
	Gatekeeper  *Gatekeeper
	Content     repository.ContentRepository
	Submissions repository.SubmissionRepository
	Assembler   DocumentAssembler
	Store       FileStore
	Dispatcher  GradingDispatcher
	Archive     Archiver
	Events      EventPublisher
}

type submissionService struct {
	gatekeeper  *Gatekeeper
	content     repository.ContentRepository
	submissions repository.SubmissionRepository
	assembler   DocumentAssembler
	store       FileStore
	dispatcher  GradingDispatcher
	archive     Archiver
	events      EventPublisher
	cfg         SubmissionConfig
	validator   *validator.Validate
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(deps SubmissionDeps, cfg SubmissionConfig, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 10
	}
	return &submissionService{
		gatekeeper:  deps.Gatekeeper,
		content:     deps.Content,
		submissions: deps.Submissions,
		assembler:   deps.Assembler,
		store:       deps.Store,
		dispatcher:  deps.Dispatcher,
		archive:     deps.Archive,
		events:      publisherOrNoop(deps.Events),
		cfg:         cfg,
		validator:   validate,
		tracer:      otel.Tracer("github.com/noah-isme/gema-classroom-api/internal/service/submission"),
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, req dto.SubmitRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if req.Mode != dto.UploadModePDF && req.Mode != dto.UploadModeImages {
		return dto.SubmissionResponse{}, ErrUnknownUploadMode
	}

	attrs := []attribute.KeyValue{
		attribute.Int64("submission.student_id", int64(req.StudentID)),
		attribute.Int64("submission.subchapter_id", int64(req.SubchapterID)),
		attribute.String("submission.mode", req.Mode),
	}
	ctx, span := s.tracer.Start(ctx, "submissions.submit", trace.WithAttributes(attrs...))
	defer span.End()

	subchapter, err := s.gatekeeper.Admit(ctx, req.StudentID, req.SubchapterID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	pdf, originalName, err := s.assemble(ctx, subchapter, req)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	now := s.now()
	fileName := storedFileName(now, originalName)
	path := submissionsDir + "/" + fileName
	if err := s.store.Write(ctx, path, pdf); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, fmt.Errorf("store submission file: %w", err)
	}

	submission := models.Submission{
		StudentID:    req.StudentID,
		SubchapterID: subchapter.ID,
		FilePath:     path,
		FileName:     fileName,
		FileSize:     int64(len(pdf)),
		Status:       models.SubmissionStatusPending,
		SubmittedAt:  now,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		span.RecordError(err)
		if delErr := s.store.Delete(ctx, path); delErr != nil {
			s.logger.Warn().Err(delErr).Str("path", path).Msg("failed to remove orphaned submission file")
		}
		return dto.SubmissionResponse{}, fmt.Errorf("create submission: %w", err)
	}

	observability.Submissions().WithLabelValues(req.Mode).Inc()
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("student_id", submission.StudentID).
		Uint("subchapter_id", submission.SubchapterID).
		Int64("file_size", submission.FileSize).
		Msg("submission stored")

	s.events.Publish(ctx, events.SubmissionCreated, map[string]interface{}{
		"submission_id": submission.ID,
		"student_id":    submission.StudentID,
		"subchapter_id": submission.SubchapterID,
	})
	s.mirror(submission, pdf)
	s.dispatchGrading(ctx, submission, subchapter.Chapter.Course)

	return dto.NewSubmissionResponse(submission), nil
}

// assemble returns the PDF to store and the name the student uploaded it under.
func (s *submissionService) assemble(ctx context.Context, subchapter models.Subchapter, req dto.SubmitRequest) ([]byte, string, error) {
	if req.Mode == dto.UploadModePDF {
		if req.File == nil || len(req.File.Data) == 0 {
			return nil, "", ErrFileRequired
		}
		pdf, err := s.assembler.EnsurePDF(*req.File)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return pdf, req.File.Name, nil
	}

	switch count := len(req.Images); {
	case count == 0:
		return nil, "", ErrNoImages
	case count > s.cfg.MaxImages:
		return nil, "", fmt.Errorf("%w: got %d, limit %d", ErrTooManyImages, count, s.cfg.MaxImages)
	}

	pdf, err := s.assembler.ImagesToPDF(ctx, req.Images)
	if err != nil {
		if errors.Is(err, document.ErrUnsupportedImage) || errors.Is(err, document.ErrNoPages) {
			return nil, "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, "", fmt.Errorf("assemble images: %w", err)
	}

	if reference := s.referenceDocument(ctx, subchapter); reference != nil {
		merged, err := s.assembler.Merge(pdf, reference)
		if err != nil {
			s.logger.Warn().Err(err).Uint("subchapter_id", subchapter.ID).Msg("failed to append homework reference, keeping image pages only")
		} else {
			pdf = merged
		}
	}

	return pdf, req.Images[0].Name, nil
}

// referenceDocument loads the course's homework sheet, the first matching material by order. Any failure yields nil.
func (s *submissionService) referenceDocument(ctx context.Context, subchapter models.Subchapter) []byte {
	name := strings.ToLower(strings.TrimSpace(s.cfg.HomeworkFileName))
	if name == "" {
		return nil
	}

	courseID := subchapter.Chapter.CourseID
	materials, err := s.content.ListCourseMaterials(ctx, courseID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("course_id", courseID).Msg("failed to list materials")
		return nil
	}

	for _, material := range materials {
		if material.FilePath == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(material.Title), name) && !strings.Contains(strings.ToLower(material.Content), name) {
			continue
		}
		data, err := s.store.Read(ctx, material.FilePath)
		if err != nil {
			s.logger.Warn().Err(err).Uint("material_id", material.ID).Str("path", material.FilePath).Msg("homework reference unreadable")
			return nil
		}
		return data
	}
	return nil
}

func (s *submissionService) mirror(submission models.Submission, pdf []byte) {
	if s.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.archive.Archive(ctx, submission.FileName, pdf); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("archive mirror failed")
		}
	}()
}

func (s *submissionService) dispatchGrading(ctx context.Context, submission models.Submission, course models.Course) {
	prompt := course.PromptText()
	if prompt == "" || s.dispatcher == nil {
		return
	}

	job := GradingJob{
		SubmissionID:  submission.ID,
		FilePath:      submission.FilePath,
		Prompt:        prompt,
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
	}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to dispatch grading job")
	}
}

func (s *submissionService) ListForStudent(ctx context.Context, studentID uint, filter dto.SubmissionListFilter) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		StudentID:    &studentID,
		SubchapterID: filter.SubchapterID,
		Status:       filter.Status,
	})
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) ListForCourse(ctx context.Context, teacherID, courseID uint, filter dto.SubmissionListFilter) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	course, err := s.content.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	if course.TeacherID != teacherID {
		return nil, ErrNotCourseTeacher
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		CourseID:     &courseID,
		StudentID:    filter.StudentID,
		SubchapterID: filter.SubchapterID,
		Status:       filter.Status,
	})
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Get(ctx context.Context, id uint, viewer Viewer) (dto.SubmissionResponse, error) {
	submission, err := s.load(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	switch viewer.Role {
	case models.RoleTeacher:
		if submission.Subchapter.Chapter.Course.TeacherID != viewer.ID {
			return dto.SubmissionResponse{}, ErrNotCourseTeacher
		}
	default:
		if submission.StudentID != viewer.ID {
			return dto.SubmissionResponse{}, ErrNotSubmissionOwner
		}
	}

	return dto.NewSubmissionResponse(submission), nil
}

// Delete removes a submission owned by studentID. Approved work is kept, and so is rejected
// work unless the policy allows deleting it.
func (s *submissionService) Delete(ctx context.Context, id, studentID uint) error {
	submission, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if submission.StudentID != studentID {
		return ErrNotSubmissionOwner
	}

	switch submission.Status {
	case models.SubmissionStatusApproved:
		return ErrSubmissionLockedIn
	case models.SubmissionStatusRejected:
		if !s.cfg.AllowDeleteRejected {
			return ErrSubmissionLockedIn
		}
	}

	if err := s.submissions.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	if err := s.store.Delete(ctx, submission.FilePath); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", id).Str("path", submission.FilePath).Msg("submission file could not be removed")
	}

	s.logger.Info().Uint("submission_id", id).Uint("student_id", studentID).Msg("submission deleted")
	return nil
}

func (s *submissionService) load(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

// storedFileName builds "<unix nanos>_<short uuid>_<alphanumeric base name>.pdf".
func storedFileName(now time.Time, original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	var b strings.Builder
	for _, r := range base {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		clean = "submission"
	}
	if len(clean) > 64 {
		clean = clean[:64]
	}
	return fmt.Sprintf("%d_%s_%s.pdf", now.UnixNano(), uuid.NewString()[:8], clean)
}
