package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/middleware"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
	"github.com/noah-isme/gema-classroom-api/pkg/ai"
)

// Grading outcomes reported in metrics and logs.
const (
	GradingOutcomeSuccess   = "success"
	GradingOutcomeUpstream  = "upstream_failure"
	GradingOutcomeInvalid   = "invalid_output"
	GradingOutcomeDiscarded = "discarded"
	GradingOutcomeStore     = "store_failure"
)

// GradingJob is everything the orchestrator needs to grade one submission.
// The prompt is resolved at submit time so the job carries no ambient lookups.
type GradingJob struct {
	SubmissionID  uint   `json:"submission_id"`
	FilePath      string `json:"file_path"`
	Prompt        string `json:"prompt"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// GradingDispatcher hands a job to background execution without blocking the caller.
type GradingDispatcher interface {
	Dispatch(ctx context.Context, job GradingJob) error
}

// JobRunner executes a single grading job.
type JobRunner interface {
	Run(ctx context.Context, job GradingJob) error
}

// GradingOrchestrator calls the AI grader once and reconciles its answer into the submission.
type GradingOrchestrator struct {
	grader      ai.Grader
	submissions repository.SubmissionRepository
	events      EventPublisher
	validator   *validator.Validate
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingOrchestrator constructs the orchestrator.
func NewGradingOrchestrator(grader ai.Grader, submissions repository.SubmissionRepository, publisher EventPublisher, validate *validator.Validate, logger zerolog.Logger) *GradingOrchestrator {
	return &GradingOrchestrator{
		grader:      grader,
		submissions: submissions,
		events:      publisherOrNoop(publisher),
		validator:   validate,
		tracer:      otel.Tracer("github.com/noah-isme/gema-classroom-api/internal/service/grading"),
		logger:      logger.With().Str("component", "grading_orchestrator").Logger(),
		now:         time.Now,
	}
}

// Run grades the job. Upstream and validation failures leave the submission pending and
// come back wrapped in ErrUpstream; they are only ever logged by dispatchers.
func (o *GradingOrchestrator) Run(ctx context.Context, job GradingJob) error {
	ctx, span := o.tracer.Start(ctx, "grading.run", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(job.SubmissionID)),
	))
	defer span.End()

	started := o.now()
	logger := middleware.LoggerWithCorrelation(ctx, o.logger.With().Uint("submission_id", job.SubmissionID).Logger())

	result, err := o.grader.Grade(ctx, ai.GradeInput{
		SubmissionID: job.SubmissionID,
		FilePath:     job.FilePath,
		Prompt:       job.Prompt,
	})
	if err != nil {
		return o.fail(ctx, span, logger, job, GradingOutcomeUpstream, err)
	}
	if err := o.validator.Struct(result); err != nil {
		return o.fail(ctx, span, logger, job, GradingOutcomeInvalid, err)
	}

	tasks := make([]models.Task, 0, len(result.Tasks))
	for _, item := range result.Tasks {
		tasks = append(tasks, models.Task{
			TaskNumber:   item.TaskNumber,
			PointsEarned: item.PointsEarned,
			MaxPoints:    item.MaxPoints,
			Comment:      item.Comment,
		})
	}
	parsed, err := json.Marshal(result.Tasks)
	if err != nil {
		return o.fail(ctx, span, logger, job, GradingOutcomeInvalid, err)
	}

	record := models.AIResult{
		RawResponse: result.RawResponse,
		Parsed:      datatypes.JSON(parsed),
		Provider:    result.Provider,
	}
	if err := o.submissions.SaveGradingResult(ctx, job.SubmissionID, tasks, record); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			observability.GradingRuns().WithLabelValues(GradingOutcomeDiscarded).Inc()
			logger.Info().Msg("submission left pending before grading finished, result discarded")
			return nil
		}
		observability.GradingRuns().WithLabelValues(GradingOutcomeStore).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store grading result")
		logger.Error().Err(err).Msg("failed to store grading result")
		return fmt.Errorf("store grading result: %w", err)
	}

	elapsed := o.now().Sub(started)
	observability.GradingRuns().WithLabelValues(GradingOutcomeSuccess).Inc()
	observability.GradingDuration().Observe(elapsed.Seconds())
	o.events.Publish(ctx, events.GradingCompleted, map[string]interface{}{
		"submission_id": job.SubmissionID,
		"tasks":         len(tasks),
		"provider":      result.Provider,
	})
	logger.Info().Int("tasks", len(tasks)).Dur("elapsed", elapsed).Msg("submission graded by ai")
	return nil
}

func (o *GradingOrchestrator) fail(ctx context.Context, span trace.Span, logger zerolog.Logger, job GradingJob, outcome string, cause error) error {
	observability.GradingRuns().WithLabelValues(outcome).Inc()
	span.RecordError(cause)
	span.SetStatus(codes.Error, outcome)
	logger.Warn().Err(cause).Str("outcome", outcome).Msg("ai grading failed, submission stays pending")
	o.events.Publish(ctx, events.GradingFailed, map[string]interface{}{
		"submission_id": job.SubmissionID,
		"outcome":       outcome,
	})
	return fmt.Errorf("%w: %v", ErrUpstream, cause)
}
