package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-queue/internal/core/domain"
)

type stubModel struct {
	res   *Result
	err   error
	delay time.Duration
	calls int
}

func (m *stubModel) ClassifyWithModel(ctx context.Context, text string) (*Result, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.res, m.err
}

func TestService_UsesModelWhenHealthy(t *testing.T) {
	model := &stubModel{res: &Result{SeverityLevel: SeverityHigh, Confidence: 0.9, RecommendedAction: "see a doctor"}}
	svc := NewService(nil, model, time.Second, zerolog.Nop())

	res, err := svc.Triage(context.Background(), "mild headache")
	require.NoError(t, err)

	assert.Equal(t, SourceModel, res.Source)
	assert.Equal(t, SeverityHigh, res.SeverityLevel)
	assert.True(t, res.NeedsImmediateAttention)
	assert.NotNil(t, res.MatchedKeywords)
}

func TestService_FallsBackOnModelError(t *testing.T) {
	model := &stubModel{err: errors.New("upstream 503")}
	svc := NewService(nil, model, time.Second, zerolog.Nop())

	res, err := svc.Triage(context.Background(), "mild headache")
	require.NoError(t, err)

	assert.Equal(t, SourceRules, res.Source)
	assert.Equal(t, SeverityLow, res.SeverityLevel)
	assert.Equal(t, 0.67, res.Confidence)
}

func TestService_FallsBackOnTimeout(t *testing.T) {
	model := &stubModel{
		res:   &Result{SeverityLevel: SeverityLow},
		delay: 200 * time.Millisecond,
	}
	svc := NewService(nil, model, 20*time.Millisecond, zerolog.Nop())

	res, err := svc.Triage(context.Background(), "I am not breathing and chest pain")
	require.NoError(t, err)

	assert.Equal(t, SourceRules, res.Source)
	assert.Equal(t, SeverityCritical, res.SeverityLevel)
}

func TestService_FallsBackOnUnusableModelAnswer(t *testing.T) {
	model := &stubModel{res: &Result{SeverityLevel: "SEVERE"}}
	svc := NewService(nil, model, time.Second, zerolog.Nop())

	res, err := svc.Triage(context.Background(), "mild headache")
	require.NoError(t, err)
	assert.Equal(t, SourceRules, res.Source)
}

func TestService_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	model := &stubModel{err: errors.New("down")}
	svc := NewService(nil, model, time.Second, zerolog.Nop())

	for i := 0; i < 5; i++ {
		res, err := svc.Triage(context.Background(), "mild headache")
		require.NoError(t, err)
		assert.Equal(t, SourceRules, res.Source)
	}

	// three failures trip the breaker, later calls never reach the model
	assert.Equal(t, 3, model.calls)
	assert.Equal(t, "open", svc.BreakerState())
}

func TestService_NoModel(t *testing.T) {
	svc := NewService(nil, nil, 0, zerolog.Nop())
	assert.Equal(t, "disabled", svc.BreakerState())

	res, err := svc.Triage(context.Background(), "mild headache")
	require.NoError(t, err)
	assert.Equal(t, SourceRules, res.Source)

	_, err = svc.Triage(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
