package triage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"hospital-queue/internal/core/domain"
)

// ModelClassifier is an optional external classifier, e.g. a hosted language model.
type ModelClassifier interface {
	ClassifyWithModel(ctx context.Context, text string) (*Result, error)
}

// DefaultModelTimeout bounds a single model call
const DefaultModelTimeout = 3 * time.Second

// ErrEmptyModelResult is returned when the model answers without a usable severity.
var ErrEmptyModelResult = errors.New("model returned no classification")

// Service classifies symptoms, preferring the model when configured and
// always falling back to the rule engine.
type Service struct {
	rules   *Classifier
	model   ModelClassifier
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewService creates a triage service. model may be nil.
func NewService(rules *Classifier, model ModelClassifier, timeout time.Duration, log zerolog.Logger) *Service {
	if rules == nil {
		rules = NewDefaultClassifier()
	}
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}

	svc := &Service{
		rules:   rules,
		model:   model,
		timeout: timeout,
		log:     log.With().Str("component", "triage").Logger(),
	}

	svc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "triage-model",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			svc.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("triage model breaker state changed")
		},
	})

	return svc
}

// Classify runs the rule engine only.
func (s *Service) Classify(text string) (*Result, error) {
	return s.rules.Classify(text)
}

// Triage classifies text. A model failure of any kind degrades to the
// rule engine; only invalid input is reported as an error.
func (s *Service) Triage(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.Validationf("symptoms text is required")
	}

	if s.model != nil {
		res, err := s.classifyWithModel(ctx, text)
		if err == nil {
			return res, nil
		}
		s.log.Warn().Err(err).Msg("model triage unavailable, using rule engine")
	}

	return s.rules.Classify(text)
}

// BreakerState exposes the model breaker state for health reporting.
func (s *Service) BreakerState() string {
	if s.model == nil {
		return "disabled"
	}
	return s.breaker.State().String()
}

func (s *Service) classifyWithModel(ctx context.Context, text string) (*Result, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		res, err := s.model.ClassifyWithModel(callCtx, text)
		if err != nil {
			return nil, err
		}
		if res == nil || !validSeverity(res.SeverityLevel) {
			return nil, ErrEmptyModelResult
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	res := *out.(*Result)
	res.Source = SourceModel
	res.NeedsImmediateAttention = res.SeverityLevel.Urgent()
	if res.Confidence < 0 {
		res.Confidence = 0
	}
	if res.Confidence > 1 {
		res.Confidence = 1
	}
	if res.MatchedKeywords == nil {
		res.MatchedKeywords = []string{}
	}
	return &res, nil
}

func validSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}
