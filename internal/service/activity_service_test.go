package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

func TestActivityRecorderNormalisesAndMasks(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewActivityLogRepository(db)
	recorder := NewActivityRecorder(repo, zerolog.Nop())
	ctx := context.Background()

	recorder.Record(ctx, ActivityEntry{
		ActorID:    3,
		ActorRole:  " Teacher ",
		Action:     " Visibility.Updated ",
		CourseID:   9,
		EntityType: "Student",
		EntityID:   4,
		Metadata:   map[string]interface{}{"student_email": "s@example.com", "changes": 2},
	})
	recorder.Record(ctx, ActivityEntry{Action: "task.edited", EntityType: "task"})

	courseID := uint(9)
	logs, total, err := repo.List(ctx, repository.ActivityLogFilter{CourseID: &courseID})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	entry := logs[0]
	require.Equal(t, "teacher", entry.ActorRole)
	require.Equal(t, ActionVisibilityUpdated, entry.Action)
	require.Equal(t, "student", entry.EntityType)
	require.Equal(t, uint(4), *entry.EntityID)
	require.Equal(t, "***", entry.Metadata["student_email"])
	require.Equal(t, json.Number("2"), entry.Metadata["changes"])

	logs, _, err = repo.List(ctx, repository.ActivityLogFilter{Action: ActionTaskEdited})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "system", logs[0].ActorRole)
	require.Nil(t, logs[0].CourseID)
	require.Nil(t, logs[0].EntityID)
}

func TestActivityRecorderSwallowsStoreErrors(t *testing.T) {
	db := newTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	recorder := NewActivityRecorder(repository.NewActivityLogRepository(db), zerolog.Nop())
	require.NoError(t, sqlDB.Close())

	require.NotPanics(t, func() {
		recorder.Record(context.Background(), ActivityEntry{ActorID: 1, Action: ActionTaskEdited, EntityType: "task"})
	})
}
