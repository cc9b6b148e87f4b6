package services

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ============================================================
// Background jobs: nearly-turn alerts, OTP purge, limiter sweep
// ============================================================

// DefaultNearlyTurnThreshold is how many patients ahead trigger the alert
const DefaultNearlyTurnThreshold = 3

// Sweeper drops stale rate limit buckets
type Sweeper interface {
	Sweep() int
}

// AutoConfig schedules the background jobs. Specs use robfig/cron syntax.
type AutoConfig struct {
	NearlyTurnSpec      string
	NearlyTurnThreshold int64
	PurgeSpec           string
	SweepSpec           string
}

func (c AutoConfig) withDefaults() AutoConfig {
	if c.NearlyTurnSpec == "" {
		c.NearlyTurnSpec = "@every 30s"
	}
	if c.NearlyTurnThreshold <= 0 {
		c.NearlyTurnThreshold = DefaultNearlyTurnThreshold
	}
	if c.PurgeSpec == "" {
		c.PurgeSpec = "@every 10m"
	}
	if c.SweepSpec == "" {
		c.SweepSpec = "@every 5m"
	}
	return c
}

// QueueAutoService runs scheduled queue automation
type QueueAutoService struct {
	store    QueueStore
	notifier Notifier
	otp      *OTPService
	sweepers []Sweeper
	cfg      AutoConfig
	cron     *cron.Cron
	log      zerolog.Logger
}

// NewQueueAutoService creates a new auto service. otp may be nil.
func NewQueueAutoService(store QueueStore, notifier Notifier, otp *OTPService, cfg AutoConfig, log zerolog.Logger, sweepers ...Sweeper) *QueueAutoService {
	log = log.With().Str("component", "queue-auto").Logger()
	cl := cronLogger{log: log}
	return &QueueAutoService{
		store:    store,
		notifier: notifier,
		otp:      otp,
		sweepers: sweepers,
		cfg:      cfg.withDefaults(),
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:      log,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *QueueAutoService) Start() error {
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"nearly-turn", s.cfg.NearlyTurnSpec, func() {
			if _, err := s.CheckNearlyTurn(context.Background()); err != nil {
				s.log.Error().Err(err).Msg("nearly-turn check failed")
			}
		}},
		{"limiter-sweep", s.cfg.SweepSpec, s.sweep},
	}
	if s.otp != nil {
		jobs = append(jobs, struct {
			name string
			spec string
			fn   func()
		}{"otp-purge", s.cfg.PurgeSpec, s.purgeOTP})
	}

	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
	}

	s.cron.Start()
	s.log.Info().Int("jobs", len(jobs)).Msg("queue auto service started")
	return nil
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *QueueAutoService) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
		s.log.Info().Msg("queue auto service stopped")
	case <-ctx.Done():
		s.log.Warn().Msg("queue auto service stop timed out")
	}
}

// CheckNearlyTurn alerts queued patients with few people ahead, once per
// appointment. It returns the number of alerts sent.
func (s *QueueAutoService) CheckNearlyTurn(ctx context.Context) (int, error) {
	appts, err := s.store.ListUnnotifiedQueued(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, appt := range appts {
		ahead, err := s.store.CountWaitingAhead(ctx, appt)
		if err != nil {
			s.log.Warn().Err(err).Uint("appointment_id", appt.ID).Msg("count ahead failed")
			continue
		}
		if ahead > s.cfg.NearlyTurnThreshold {
			continue
		}

		if err := s.store.MarkNotified(ctx, appt.ID); err != nil {
			s.log.Warn().Err(err).Uint("appointment_id", appt.ID).Msg("mark notified failed")
			continue
		}

		payload := appointmentPayload(appt)
		payload["waiting_ahead"] = ahead
		s.notifier.Notify(ctx, PatientRef(appt.PatientID), EventNearlyTurn, payload)
		sent++
	}

	if sent > 0 {
		s.log.Info().Int("sent", sent).Msg("nearly-turn alerts sent")
	}
	return sent, nil
}

func (s *QueueAutoService) purgeOTP() {
	n, err := s.otp.PurgeExpired(context.Background())
	if err != nil {
		s.log.Error().Err(err).Msg("otp purge failed")
		return
	}
	if n > 0 {
		s.log.Debug().Int64("deleted", n).Msg("expired otp challenges purged")
	}
}

func (s *QueueAutoService) sweep() {
	for _, sw := range s.sweepers {
		sw.Sweep()
	}
}

// cronLogger routes scheduler logs through zerolog
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
