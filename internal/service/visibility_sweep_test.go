package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom-api/internal/events"
	"github.com/noah-isme/gema-classroom-api/internal/models"
)

type datedContent struct {
	chapter models.Chapter
	open    models.Subchapter
	closing models.Subchapter
	orphan  models.Subchapter
}

func seedDatedContent(t *testing.T, c *classroom, base time.Time) datedContent {
	t.Helper()
	from := base.Add(time.Hour)
	until := base.Add(5 * time.Hour)
	closeAt := base.Add(3 * time.Hour)

	chapter := models.Chapter{CourseID: c.course.ID, Title: "Functions", Order: 2, VisibilityPolicy: models.VisibilityDateBased, VisibleFrom: &from, VisibleUntil: &until}
	manual := models.Chapter{CourseID: c.course.ID, Title: "Bonus", Order: 3, VisibilityPolicy: models.VisibilityManual}
	require.NoError(t, c.db.Create(&chapter).Error)
	require.NoError(t, c.db.Create(&manual).Error)

	content := datedContent{
		chapter: chapter,
		open:    models.Subchapter{ChapterID: chapter.ID, Title: "Domains", Order: 1, VisibilityPolicy: models.VisibilityDateBased, VisibleFrom: &from, AllowSubmissions: true},
		closing: models.Subchapter{ChapterID: chapter.ID, Title: "Ranges", Order: 2, VisibilityPolicy: models.VisibilityDateBased, VisibleFrom: &from, VisibleUntil: &closeAt},
		orphan:  models.Subchapter{ChapterID: manual.ID, Title: "Puzzles", Order: 1, VisibilityPolicy: models.VisibilityDateBased, VisibleFrom: &from, AllowSubmissions: true},
	}
	require.NoError(t, c.db.Create(&content.open).Error)
	require.NoError(t, c.db.Create(&content.closing).Error)
	require.NoError(t, c.db.Create(&content.orphan).Error)
	return content
}

func newSweeperAt(c *classroom, publisher EventPublisher, now time.Time) *VisibilitySweeper {
	sweeper := NewVisibilitySweeper(c.visibility, publisher, zerolog.Nop())
	sweeper.now = func() time.Time { return now }
	return sweeper
}

func TestSweepOpensAndClosesDateWindows(t *testing.T) {
	c := newClassroom(t)
	base := time.Now()
	dated := seedDatedContent(t, c, base)
	c.enroll(t)
	ctx := context.Background()

	chapterRow, err := c.visibility.GetChapter(ctx, dated.chapter.ID, c.student.ID)
	require.NoError(t, err)
	require.False(t, chapterRow.IsVisible)

	publisher := &recordingPublisher{}
	changed, err := newSweeperAt(c, publisher, base.Add(2*time.Hour)).Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, changed)

	chapterRow, err = c.visibility.GetChapter(ctx, dated.chapter.ID, c.student.ID)
	require.NoError(t, err)
	require.True(t, chapterRow.IsVisible)
	require.NotNil(t, chapterRow.UnlockedAt)
	require.True(t, dated.chapter.VisibleFrom.Equal(*chapterRow.UnlockedAt))

	open := c.subchapterState(t, dated.open.ID)
	require.True(t, open.IsVisible)
	require.True(t, open.CanSubmit)
	closing := c.subchapterState(t, dated.closing.ID)
	require.True(t, closing.IsVisible)
	require.False(t, closing.CanSubmit)
	require.False(t, c.subchapterState(t, dated.orphan.ID).IsVisible)
	require.Equal(t, []string{events.VisibilityChanged}, publisher.Events())

	changed, err = newSweeperAt(c, nil, base.Add(2*time.Hour)).Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, changed)

	changed, err = newSweeperAt(c, nil, base.Add(4*time.Hour)).Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, changed)
	closing = c.subchapterState(t, dated.closing.ID)
	require.False(t, closing.IsVisible)
	require.Nil(t, closing.UnlockedAt)
	require.True(t, c.subchapterState(t, dated.open.ID).IsVisible)
}

func TestSweepLeavesLaterTeacherOverrideAlone(t *testing.T) {
	c := newClassroom(t)
	base := time.Now()
	dated := seedDatedContent(t, c, base)
	c.enroll(t)
	ctx := context.Background()

	row := c.subchapterState(t, dated.open.ID)
	require.NoError(t, c.db.Model(&models.SubchapterVisibility{}).Where("id = ?", row.ID).UpdateColumn("updated_at", base.Add(90*time.Minute)).Error)

	changed, err := newSweeperAt(c, nil, base.Add(2*time.Hour)).Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, changed)
	require.False(t, c.subchapterState(t, dated.open.ID).IsVisible)
	require.True(t, c.subchapterState(t, dated.closing.ID).IsVisible)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	c := newClassroom(t)
	sweeper := NewVisibilitySweeper(c.visibility, nil, zerolog.Nop())

	_, err := sweeper.Schedule("not a cron spec")
	require.Error(t, err)

	scheduler, err := sweeper.Schedule("@every 1h")
	require.NoError(t, err)
	<-scheduler.Stop().Done()
}
