// Package cronfire turns enabled schedules into concrete tasks. Each tick
// computes the firing instants inside a scan window and inserts one task per
// firing; the ticket uniqueness constraint collapses replays and overlapping
// windows to no-ops.
package cronfire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"batchplane/internal/store"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Store is the persistence surface the fan-out needs.
type Store interface {
	ListEnabledSchedules(ctx context.Context) ([]store.Schedule, error)
	InsertTaskIfAbsent(ctx context.Context, t *store.Task) (bool, error)
	UpdateLastFireAt(ctx context.Context, id int64, ts time.Time) error
}

// parser accepts standard 5-field expressions plus an optional leading
// seconds field.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron validates a cron expression the way the fan-out will parse it.
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

const (
	// backfillWindow bounds how far back a schedule with no recorded
	// firing is scanned.
	backfillWindow = 3600 * time.Second

	// maxFiringsPerTick caps fan-out per schedule per tick; wider
	// backfills continue next tick.
	maxFiringsPerTick = 5000

	defaultMaxAttempts = 3
)

// Config holds service timing.
type Config struct {
	Interval     time.Duration // default 10s
	InitialDelay time.Duration // default 5s
}

// Service runs the periodic fan-out.
type Service struct {
	store Store
	cfg   Config
	log   *slog.Logger
	now   func() time.Time

	fired metric.Int64Counter
}

func New(s Store, cfg Config, log *slog.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	meter := otel.Meter("batchplane-cronfire")
	fired, _ := meter.Int64Counter("batchplane.cron.fired",
		metric.WithDescription("Tasks inserted by cron fan-out"))

	return &Service{store: s, cfg: cfg, log: log, now: time.Now, fired: fired}
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.InitialDelay):
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("cron fan-out started", "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.FireDue(ctx); err != nil {
				s.log.Error("cron fan-out tick failed", "error", err)
			}
		}
	}
}

// FireDue scans enabled schedules and inserts one PENDING task per firing
// instant from the last-fire instant (inclusive; its ticket already exists,
// so it collapses) or, with no last fire, from now minus one hour, up to and
// including now. Only a newly inserted row advances
// the schedule's last-fire instant, so restarts and overlapping windows stay
// idempotent.
func (s *Service) FireDue(ctx context.Context) error {
	now := s.now().Truncate(time.Second)

	schedules, err := s.store.ListEnabledSchedules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled schedules: %w", err)
	}

	for _, sched := range schedules {
		if err := s.fireSchedule(ctx, sched, now); err != nil {
			s.log.Error("fan-out failed for schedule", "schedule_id", sched.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) fireSchedule(ctx context.Context, sched store.Schedule, now time.Time) error {
	if sched.Cron == "" {
		return nil
	}

	expr, err := parser.Parse(sched.Cron)
	if err != nil {
		s.log.Warn("invalid cron expression, skipping schedule",
			"schedule_id", sched.ID, "cron", sched.Cron, "error", err)
		return nil
	}

	start := now.Add(-backfillWindow)
	if sched.LastFireAt != nil {
		start = *sched.LastFireAt
	}
	end := now

	var toFire []time.Time
	for next := expr.Next(start.Add(-time.Second)); !next.IsZero() && !next.After(end); next = expr.Next(next) {
		toFire = append(toFire, next)
		if len(toFire) >= maxFiringsPerTick {
			s.log.Warn("fan-out cap reached, deferring remainder to next tick",
				"schedule_id", sched.ID, "cap", maxFiringsPerTick)
			break
		}
	}

	for _, t := range toFire {
		t := t
		ticket := fmt.Sprintf("schedule#%d#%s", sched.ID, t.Format("20060102150405"))
		scheduleID := sched.ID

		task := &store.Task{
			ScheduleID:  &scheduleID,
			Ticket:      &ticket,
			Type:        sched.Type,
			Payload:     sched.Payload,
			Status:      store.TaskStatusPending,
			Priority:    0,
			Attempts:    0,
			MaxAttempts: defaultMaxAttempts,
			NotBefore:   &t,
		}

		inserted, err := s.store.InsertTaskIfAbsent(ctx, task)
		if err != nil {
			return fmt.Errorf("conditional insert for ticket %s failed: %w", ticket, err)
		}
		if !inserted {
			continue
		}

		s.log.Info("fired schedule", "schedule_id", sched.ID, "cron", sched.Cron, "at", t)
		s.fired.Add(ctx, 1, metric.WithAttributes(attribute.String("task.type", sched.Type)))

		if err := s.store.UpdateLastFireAt(ctx, sched.ID, t); err != nil {
			return fmt.Errorf("advance last fire for schedule %d failed: %w", sched.ID, err)
		}
	}
	return nil
}
