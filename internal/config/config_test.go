package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 10, cfg.MaxImages)
	require.Equal(t, "homework.pdf", cfg.HomeworkFileName)
	require.Equal(t, GradingModeInProcess, cfg.GradingMode)
	require.Equal(t, 3*time.Minute, cfg.GradingTimeout)
	require.False(t, cfg.AllowDeleteRejected)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRedisModeRequiresURL(t *testing.T) {
	t.Setenv("GEMA_JWT_SECRET", "secret")
	t.Setenv("GEMA_GRADING_MODE", "redis")
	t.Setenv("GEMA_REDIS_URL", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("GEMA_REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, GradingModeRedis, cfg.GradingMode)
}
