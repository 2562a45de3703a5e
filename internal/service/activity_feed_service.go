package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

// ActivityFeedService exposes a course's audit trail to its teacher.
type ActivityFeedService interface {
	List(ctx context.Context, teacherID, courseID uint, req dto.ActivityFeedRequest) (dto.ActivityFeedResponse, error)
}

type activityFeedService struct {
	content   repository.ContentRepository
	repo      repository.ActivityLogRepository
	cache     *redis.Client
	ttl       time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewActivityFeedService builds the feed. A nil cache disables caching.
func NewActivityFeedService(content repository.ContentRepository, repo repository.ActivityLogRepository, cache *redis.Client, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) ActivityFeedService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &activityFeedService{
		content:   content,
		repo:      repo,
		cache:     cache,
		ttl:       ttl,
		validator: validate,
		logger:    logger.With().Str("component", "activity_feed_service").Logger(),
	}
}

func (s *activityFeedService) List(ctx context.Context, teacherID, courseID uint, req dto.ActivityFeedRequest) (dto.ActivityFeedResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ActivityFeedResponse{}, err
	}

	course, err := s.content.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ActivityFeedResponse{}, ErrCourseNotFound
		}
		return dto.ActivityFeedResponse{}, err
	}
	if course.TeacherID != teacherID {
		return dto.ActivityFeedResponse{}, ErrNotCourseTeacher
	}

	filter := repository.ActivityLogFilter{
		Page:     maxInt(req.Page, 1),
		PageSize: clampPageSize(req.PageSize),
		CourseID: &courseID,
		Action:   strings.ToLower(strings.TrimSpace(req.Action)),
	}

	cacheKey := s.cacheKey(filter)
	if cacheKey != "" {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			var response dto.ActivityFeedResponse
			if err := json.Unmarshal([]byte(cached), &response); err == nil {
				response.CacheHit = true
				observability.ActivityFeedRequests().WithLabelValues("hit").Inc()
				return response, nil
			}
		}
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		observability.ActivityFeedRequests().WithLabelValues("error").Inc()
		return dto.ActivityFeedResponse{}, err
	}

	items := make([]dto.ActivityFeedItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.ActivityFeedItem{
			ID:         entry.ID,
			ActorID:    entry.ActorID,
			ActorRole:  entry.ActorRole,
			Action:     entry.Action,
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			Metadata:   map[string]interface{}(entry.Metadata),
			CreatedAt:  entry.CreatedAt,
		})
	}

	response := dto.ActivityFeedResponse{
		Items: items,
		Pagination: dto.PaginationMeta{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalItems: total,
			TotalPages: int(math.Ceil(float64(total) / float64(filter.PageSize))),
		},
	}

	if cacheKey != "" {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.ttl).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to write activity feed cache")
			}
		}
	}
	observability.ActivityFeedRequests().WithLabelValues("miss").Inc()

	return response, nil
}

func (s *activityFeedService) cacheKey(filter repository.ActivityLogFilter) string {
	if s.cache == nil {
		return ""
	}
	return fmt.Sprintf("classroom:activity:v1:%d:%s:%d:%d", *filter.CourseID, filter.Action, filter.Page, filter.PageSize)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampPageSize(size int) int {
	if size <= 0 {
		return 20
	}
	if size > 100 {
		return 100
	}
	return size
}
