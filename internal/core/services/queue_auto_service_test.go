package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-queue/internal/core/services"
)

func TestCheckNearlyTurn_AlertsOncePerAppointment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var patients []uint
	for p := uint(1); p <= 5; p++ {
		f.book(t, p)
		patients = append(patients, p)
	}

	auto := services.NewQueueAutoService(f.store, f.notifier, nil, services.AutoConfig{}, zerolog.Nop())

	sent, err := auto.CheckNearlyTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sent)
	for _, p := range patients[:4] {
		assert.True(t, f.notifier.has(services.PatientRef(p), services.EventNearlyTurn))
	}
	assert.False(t, f.notifier.has(services.PatientRef(5), services.EventNearlyTurn))

	sent, err = auto.CheckNearlyTurn(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	_, err = f.svc.CallNext(ctx, f.dept.ID)
	require.NoError(t, err)

	sent, err = auto.CheckNearlyTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, f.notifier.has(services.PatientRef(5), services.EventNearlyTurn))
}

func TestCheckNearlyTurn_CustomThreshold(t *testing.T) {
	f := newFixture(t, nil)
	for p := uint(1); p <= 3; p++ {
		f.book(t, p)
	}

	auto := services.NewQueueAutoService(f.store, f.notifier, nil, services.AutoConfig{NearlyTurnThreshold: 1}, zerolog.Nop())
	sent, err := auto.CheckNearlyTurn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

type countingSweeper struct{ calls int }

func (c *countingSweeper) Sweep() int { c.calls++; return 0 }

func TestQueueAutoService_StartStop(t *testing.T) {
	f := newFixture(t, nil)
	auto := services.NewQueueAutoService(f.store, f.notifier, nil, services.AutoConfig{}, zerolog.Nop(), &countingSweeper{})
	require.NoError(t, auto.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	auto.Stop(ctx)
}

func TestQueueAutoService_BadSchedule(t *testing.T) {
	f := newFixture(t, nil)
	auto := services.NewQueueAutoService(f.store, f.notifier, nil, services.AutoConfig{NearlyTurnSpec: "not a schedule"}, zerolog.Nop())
	assert.Error(t, auto.Start())
}
