package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

// Audited actions.
const (
	ActionVisibilityUpdated = "visibility.updated"
	ActionSubmissionDraft   = "submission.review_started"
	ActionSubmissionFinal   = "submission.reviewed"
	ActionTaskEdited        = "task.edited"
)

// ActivityEntry describes a teacher action worth auditing.
type ActivityEntry struct {
	ActorID    uint
	ActorRole  string
	Action     string
	CourseID   uint
	EntityType string
	EntityID   uint
	Metadata   map[string]interface{}
}

// ActivityRecorder writes the audit trail. Failures never reach the caller.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry)
}

type activityRecorder struct {
	repo   repository.ActivityLogRepository
	logger zerolog.Logger
}

// NewActivityRecorder constructs an ActivityRecorder backed by the activity log repository.
func NewActivityRecorder(repo repository.ActivityLogRepository, logger zerolog.Logger) ActivityRecorder {
	return &activityRecorder{
		repo:   repo,
		logger: logger.With().Str("component", "activity_recorder").Logger(),
	}
}

func (r *activityRecorder) Record(ctx context.Context, entry ActivityEntry) {
	model := models.ActivityLog{
		ActorID:    entry.ActorID,
		ActorRole:  normalizeRole(entry.ActorRole),
		Action:     strings.ToLower(strings.TrimSpace(entry.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(entry.EntityType)),
		Metadata:   sanitizeMetadata(entry.Metadata),
	}
	if entry.CourseID > 0 {
		courseID := entry.CourseID
		model.CourseID = &courseID
	}
	if entry.EntityID > 0 {
		entityID := entry.EntityID
		model.EntityID = &entityID
	}

	if err := r.repo.Create(ctx, &model); err != nil {
		r.logger.Error().Err(err).Str("action", model.Action).Msg("failed to persist activity log")
	}
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	if metadata == nil {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") || strings.Contains(lower, "token") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}
