package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

func TestEnrollOpensFirstProgressSiblingOnly(t *testing.T) {
	c := newClassroom(t)
	svc := NewEnrollmentService(c.content, c.enrollments, c.visibility, zerolog.Nop())

	resp, err := svc.Enroll(context.Background(), c.student.ID, c.course.ID)
	require.NoError(t, err)
	require.Equal(t, 1, resp.VisibleChapters)
	require.Equal(t, 1, resp.VisibleSubchapters)

	chapter, err := c.visibility.GetChapter(context.Background(), c.chapter.ID, c.student.ID)
	require.NoError(t, err)
	require.True(t, chapter.IsVisible)
	require.NotNil(t, chapter.UnlockedAt)

	first := c.subchapterState(t, c.subchapters[0].ID)
	require.True(t, first.IsVisible)
	require.True(t, first.CanSubmit)

	second := c.subchapterState(t, c.subchapters[1].ID)
	require.False(t, second.IsVisible)
	require.False(t, second.CanSubmit)
	require.Nil(t, second.UnlockedAt)
}

func TestEnrollRejectsDuplicatesAndUnknownCourses(t *testing.T) {
	c := newClassroom(t)
	svc := NewEnrollmentService(c.content, c.enrollments, c.visibility, zerolog.Nop())

	_, err := svc.Enroll(context.Background(), c.student.ID, c.course.ID)
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), c.student.ID, c.course.ID)
	require.ErrorIs(t, err, ErrAlreadyEnrolled)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Enroll(context.Background(), c.student.ID, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

// staleEnrollments misses existing rows on lookup, like a request racing a concurrent enroll.
type staleEnrollments struct {
	repository.EnrollmentRepository
}

func (staleEnrollments) Get(context.Context, uint, uint) (models.Enrollment, error) {
	return models.Enrollment{}, gorm.ErrRecordNotFound
}

func TestEnrollMapsConcurrentDuplicateToAlreadyEnrolled(t *testing.T) {
	c := newClassroom(t)
	svc := NewEnrollmentService(c.content, staleEnrollments{c.enrollments}, c.visibility, zerolog.Nop())

	_, err := svc.Enroll(context.Background(), c.student.ID, c.course.ID)
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), c.student.ID, c.course.ID)
	require.ErrorIs(t, err, ErrAlreadyEnrolled)

	var rows int64
	require.NoError(t, c.db.Model(&models.SubchapterVisibility{}).Where("student_id = ?", c.student.ID).Count(&rows).Error)
	require.Equal(t, int64(len(c.subchapters)), rows)
}

func TestEnrollGatesSubchaptersByChapterAndDates(t *testing.T) {
	c := newClassroom(t)
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	manual := models.Chapter{CourseID: c.course.ID, Title: "Manual", Order: 2, VisibilityPolicy: models.VisibilityManual}
	dated := models.Chapter{CourseID: c.course.ID, Title: "Dated", Order: 3, VisibilityPolicy: models.VisibilityDateBased, VisibleFrom: &past}
	require.NoError(t, c.db.Create(&manual).Error)
	require.NoError(t, c.db.Create(&dated).Error)

	underManual := models.Subchapter{ChapterID: manual.ID, Title: "Hidden by parent", Order: 1, VisibilityPolicy: models.VisibilityProgressBased, AllowSubmissions: true}
	openDated := models.Subchapter{ChapterID: dated.ID, Title: "Open", Order: 1, VisibilityPolicy: models.VisibilityDateBased, VisibleFrom: &past}
	laterDated := models.Subchapter{ChapterID: dated.ID, Title: "Later", Order: 2, VisibilityPolicy: models.VisibilityDateBased, VisibleFrom: &future, AllowSubmissions: true}
	require.NoError(t, c.db.Create(&underManual).Error)
	require.NoError(t, c.db.Create(&openDated).Error)
	require.NoError(t, c.db.Create(&laterDated).Error)

	svc := NewEnrollmentService(c.content, c.enrollments, c.visibility, zerolog.Nop()).(*enrollmentService)
	svc.now = func() time.Time { return now }

	_, err := svc.Enroll(context.Background(), c.student.ID, c.course.ID)
	require.NoError(t, err)

	require.False(t, c.subchapterState(t, underManual.ID).IsVisible)

	open := c.subchapterState(t, openDated.ID)
	require.True(t, open.IsVisible)
	require.False(t, open.CanSubmit, "allow_submissions is off")
	require.NotNil(t, open.UnlockedAt)
	require.True(t, open.UnlockedAt.Equal(past))

	require.False(t, c.subchapterState(t, laterDated.ID).IsVisible)
}

func TestCourseContentHidesLockedMaterials(t *testing.T) {
	c := newClassroom(t)
	svc := NewEnrollmentService(c.content, c.enrollments, c.visibility, zerolog.Nop())

	require.NoError(t, c.db.Create(&[]models.Material{
		{SubchapterID: c.subchapters[0].ID, Title: "Notes", Content: "x + 1 = 2", Order: 1},
		{SubchapterID: c.subchapters[1].ID, Title: "Secret", Content: "later", Order: 1},
	}).Error)

	_, err := svc.CourseContent(context.Background(), c.student.ID, c.course.ID)
	require.Equal(t, AccessNotEnrolled, AccessCode(err))
	require.ErrorIs(t, err, ErrForbidden)

	c.enroll(t)
	content, err := svc.CourseContent(context.Background(), c.student.ID, c.course.ID)
	require.NoError(t, err)
	require.Len(t, content.Chapters, 1)

	subchapters := content.Chapters[0].Subchapters
	require.Len(t, subchapters, 2)
	require.True(t, subchapters[0].IsVisible)
	require.True(t, subchapters[0].CanSubmit)
	require.Len(t, subchapters[0].Materials, 1)
	require.False(t, subchapters[1].IsVisible)
	require.Empty(t, subchapters[1].Materials)
}
