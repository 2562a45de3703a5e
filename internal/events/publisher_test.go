package events

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSubjectUsesPrefix(t *testing.T) {
	publisher := NewPublisher(nil, "gema:classroom", zerolog.Nop())
	require.Equal(t, "gema.classroom.grading.completed", publisher.Subject(GradingCompleted))

	bare := NewPublisher(nil, "", zerolog.Nop())
	require.Equal(t, SubmissionReviewed, bare.Subject(SubmissionReviewed))
}

func TestPublishWithoutConnectionIsNoop(t *testing.T) {
	publisher := NewPublisher(nil, "gema", zerolog.Nop())
	require.NotPanics(t, func() {
		publisher.Publish(context.Background(), GradingFailed, map[string]uint{"submission_id": 1})
	})

	var nilPublisher *Publisher
	require.NotPanics(t, func() {
		nilPublisher.Publish(context.Background(), GradingFailed, nil)
	})
}
