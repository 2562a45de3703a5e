package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
)

func TestGatekeeperDenials(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T, c *classroom)
		code  string
	}{
		{
			name:  "not enrolled",
			setup: func(t *testing.T, c *classroom) {},
			code:  AccessNotEnrolled,
		},
		{
			name: "not visible",
			setup: func(t *testing.T, c *classroom) {
				c.enroll(t)
				require.NoError(t, c.db.Exec("UPDATE subchapter_visibilities SET is_visible = ?, can_submit = ? WHERE subchapter_id = ?", false, false, c.subchapters[0].ID).Error)
			},
			code: AccessNotVisible,
		},
		{
			name: "submissions disabled",
			setup: func(t *testing.T, c *classroom) {
				c.enroll(t)
				require.NoError(t, c.db.Exec("UPDATE subchapters SET allow_submissions = ? WHERE id = ?", false, c.subchapters[0].ID).Error)
			},
			code: AccessSubmissionsDisabled,
		},
		{
			name: "submission locked",
			setup: func(t *testing.T, c *classroom) {
				c.enroll(t)
				require.NoError(t, c.db.Exec("UPDATE subchapter_visibilities SET can_submit = ? WHERE subchapter_id = ?", false, c.subchapters[0].ID).Error)
			},
			code: AccessSubmissionLocked,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClassroom(t)
			tc.setup(t, c)

			gate := NewGatekeeper(c.content, c.enrollments, c.visibility)
			_, err := gate.Admit(context.Background(), c.student.ID, c.subchapters[0].ID)
			require.ErrorIs(t, err, ErrForbidden)
			require.Equal(t, tc.code, AccessCode(err))
			require.Equal(t, "access denied", err.Error())
		})
	}
}

func TestGatekeeperAdmitsAndReportsMissingSubchapter(t *testing.T) {
	c := newClassroom(t)
	c.enroll(t)
	gate := NewGatekeeper(c.content, c.enrollments, c.visibility)

	subchapter, err := gate.Admit(context.Background(), c.student.ID, c.subchapters[0].ID)
	require.NoError(t, err)
	require.Equal(t, c.course.ID, subchapter.Chapter.CourseID)

	_, err = gate.Admit(context.Background(), c.student.ID, 424242)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, AccessCode(err))
}

func TestGatekeeperRechecksHiddenChapterAfterOverride(t *testing.T) {
	c := newClassroom(t)
	c.enroll(t)
	svc := newVisibilityService(c, nil)

	_, err := svc.Apply(context.Background(), c.teacher.ID, c.course.ID, c.student.ID, dto.VisibilityUpdateRequest{
		Changes: []dto.VisibilityChange{
			{TargetType: dto.VisibilityTargetChapter, TargetID: c.chapter.ID, IsVisible: boolPtr(false)},
			{TargetType: dto.VisibilityTargetSubchapter, TargetID: c.subchapters[1].ID, IsVisible: boolPtr(true), CanSubmit: boolPtr(true)},
		},
	})
	require.NoError(t, err)

	row := c.subchapterState(t, c.subchapters[1].ID)
	require.True(t, row.IsVisible)
	require.True(t, row.CanSubmit)

	gate := NewGatekeeper(c.content, c.enrollments, c.visibility)
	_, err = gate.Admit(context.Background(), c.student.ID, c.subchapters[1].ID)
	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, AccessChapterHidden, AccessCode(err))

	content := NewEnrollmentService(c.content, c.enrollments, c.visibility, zerolog.Nop())
	view, err := content.CourseContent(context.Background(), c.student.ID, c.course.ID)
	require.NoError(t, err)
	require.False(t, view.Chapters[0].Subchapters[1].IsVisible)
}
