package service

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

const sweepTimeout = 2 * time.Minute

// VisibilitySweeper re-evaluates date based content on a schedule.
//
// A row is only flipped when it was last written before the window boundary it crosses,
// so a teacher override made after the boundary is left alone.
type VisibilitySweeper struct {
	visibility repository.VisibilityRepository
	events     EventPublisher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewVisibilitySweeper constructs the sweeper.
func NewVisibilitySweeper(visibility repository.VisibilityRepository, publisher EventPublisher, logger zerolog.Logger) *VisibilitySweeper {
	return &VisibilitySweeper{
		visibility: visibility,
		events:     publisherOrNoop(publisher),
		logger:     logger.With().Str("component", "visibility_sweeper").Logger(),
		now:        time.Now,
	}
}

// Schedule registers the sweep on a new cron scheduler and starts it.
func (s *VisibilitySweeper) Schedule(spec string) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error().Err(err).Msg("visibility sweep failed")
		}
	}); err != nil {
		return nil, err
	}
	scheduler.Start()
	return scheduler, nil
}

// Sweep applies date windows in one transaction and returns the number of rows changed.
func (s *VisibilitySweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	changed := 0

	err := s.visibility.Transaction(ctx, func(tx repository.VisibilityRepository) error {
		changed = 0

		chapters, err := tx.ListChaptersByPolicy(ctx, models.VisibilityDateBased)
		if err != nil {
			return err
		}
		for i := range chapters {
			row := &chapters[i]
			node := row.Chapter.Node()
			switch {
			case opensNow(node, row.IsVisible, row.UpdatedAt, now):
				row.IsVisible = true
				row.UnlockedAt = copyTime(node.VisibleFrom)
			case closesNow(node, row.IsVisible, row.UpdatedAt, now):
				row.SetVisible(false, now)
			default:
				continue
			}
			if err := tx.SaveChapter(ctx, row); err != nil {
				return err
			}
			changed++
		}

		subchapters, err := tx.ListSubchaptersByPolicy(ctx, models.VisibilityDateBased)
		if err != nil {
			return err
		}
		for i := range subchapters {
			row := &subchapters[i]
			node := row.Subchapter.Node()
			switch {
			case opensNow(node, row.IsVisible, row.UpdatedAt, now):
				parent, err := tx.GetChapter(ctx, row.Subchapter.ChapterID, row.StudentID)
				if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				if err != nil || !parent.IsVisible {
					continue
				}
				row.IsVisible = true
				row.CanSubmit = row.Subchapter.AllowSubmissions
				row.UnlockedAt = copyTime(node.VisibleFrom)
			case closesNow(node, row.IsVisible, row.UpdatedAt, now):
				row.SetVisible(false, now)
				row.CanSubmit = false
			default:
				continue
			}
			if err := tx.SaveSubchapter(ctx, row); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if changed > 0 {
		observability.VisibilityChanges().WithLabelValues("sweep").Add(float64(changed))
		s.events.Publish(ctx, events.VisibilityChanged, map[string]interface{}{"source": "sweep", "changed": changed})
		s.logger.Info().Int("changed", changed).Msg("date based visibility swept")
	}
	return changed, nil
}

func opensNow(node models.ContentNode, visible bool, updatedAt, now time.Time) bool {
	if visible || !withinWindow(node, now) {
		return false
	}
	return updatedAt.Before(*node.VisibleFrom)
}

func closesNow(node models.ContentNode, visible bool, updatedAt, now time.Time) bool {
	if !visible || node.VisibleUntil == nil || !now.After(*node.VisibleUntil) {
		return false
	}
	return updatedAt.Before(*node.VisibleUntil)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}
