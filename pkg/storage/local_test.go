package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLocalWriteReadDelete(t *testing.T) {
	store, err := NewLocal(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "submissions/1_homework.pdf", []byte("%PDF-1.7")))

	data, err := store.Read(ctx, "submissions/1_homework.pdf")
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.7"), data)

	require.NoError(t, store.Delete(ctx, "submissions/1_homework.pdf"))
	_, err = store.Read(ctx, "submissions/1_homework.pdf")
	require.True(t, errors.Is(err, os.ErrNotExist))

	err = store.Delete(ctx, "submissions/1_homework.pdf")
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalRejectsPathsOutsideRoot(t *testing.T) {
	store, err := NewLocal(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.ErrorIs(t, store.Write(ctx, "../escape.pdf", []byte("x")), ErrOutsideRoot)
	_, err = store.Read(ctx, "/etc/passwd")
	require.ErrorIs(t, err, ErrOutsideRoot)
	require.ErrorIs(t, store.Delete(ctx, ""), ErrOutsideRoot)
}
