package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

func TestActivityFeedServesFromCache(t *testing.T) {
	c := newClassroom(t)
	c.enroll(t)
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	visibility := newVisibilityService(c, nil)
	_, err := visibility.Apply(context.Background(), c.teacher.ID, c.course.ID, c.student.ID, dto.VisibilityUpdateRequest{
		Changes: []dto.VisibilityChange{{TargetType: dto.VisibilityTargetSubchapter, TargetID: c.subchapters[1].ID, IsVisible: boolPtr(true)}},
	})
	require.NoError(t, err)

	feed := NewActivityFeedService(c.content, repository.NewActivityLogRepository(c.db), client, time.Minute, newValidator(), zerolog.Nop())
	ctx := context.Background()

	first, err := feed.List(ctx, c.teacher.ID, c.course.ID, dto.ActivityFeedRequest{})
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.Len(t, first.Items, 1)
	require.Equal(t, ActionVisibilityUpdated, first.Items[0].Action)
	require.Equal(t, 1, first.Pagination.TotalPages)

	second, err := feed.List(ctx, c.teacher.ID, c.course.ID, dto.ActivityFeedRequest{})
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.Items[0].ID, second.Items[0].ID)

	server.FastForward(2 * time.Minute)
	third, err := feed.List(ctx, c.teacher.ID, c.course.ID, dto.ActivityFeedRequest{})
	require.NoError(t, err)
	require.False(t, third.CacheHit)
}

func TestActivityFeedIsTeacherOnly(t *testing.T) {
	c := newClassroom(t)
	feed := NewActivityFeedService(c.content, repository.NewActivityLogRepository(c.db), nil, 0, newValidator(), zerolog.Nop())
	ctx := context.Background()

	_, err := feed.List(ctx, c.student.ID, c.course.ID, dto.ActivityFeedRequest{})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = feed.List(ctx, c.teacher.ID, c.course.ID+99, dto.ActivityFeedRequest{})
	require.ErrorIs(t, err, ErrNotFound)

	resp, err := feed.List(ctx, c.teacher.ID, c.course.ID, dto.ActivityFeedRequest{PageSize: 5})
	require.NoError(t, err)
	require.Empty(t, resp.Items)
	require.Equal(t, 5, resp.Pagination.PageSize)
}
