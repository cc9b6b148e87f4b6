package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-queue/internal/adapters/persistence/memory"
)

func TestSeedMemory(t *testing.T) {
	store := memory.NewStore()
	SeedMemory(store)

	ctx := context.Background()
	h, err := store.GetHospital(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "CGH", h.Code)

	depts, err := store.ListDepartments(ctx, h.ID)
	require.NoError(t, err)
	assert.Len(t, depts, len(defaultHospitals[0].Departments))
	for _, d := range depts {
		assert.True(t, d.IsActive)
		assert.Positive(t, d.AverageServiceTimeMin)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_WINDOW", "90s")
	assert.Equal(t, "1m30s", getEnvDuration("TEST_WINDOW", 0).String())

	t.Setenv("TEST_WINDOW", "45")
	assert.Equal(t, "45s", getEnvDuration("TEST_WINDOW", 0).String())

	t.Setenv("TEST_WINDOW", "junk")
	assert.Equal(t, "1m0s", getEnvDuration("TEST_WINDOW", 60_000_000_000).String())
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("APP_MODE", "dev")
	t.Setenv("STORE_DRIVER", "postgres")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositiveWindow(t *testing.T) {
	t.Setenv("APP_MODE", "dev")
	t.Setenv("STORE_DRIVER", "memory")

	for _, v := range []string{"0", "0s", "-1m"} {
		t.Setenv("RATE_LIMIT_WINDOW", v)
		_, err := Load()
		assert.Error(t, err, v)
	}

	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
}
