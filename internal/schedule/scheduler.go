// Package schedule runs named jobs on weekly triggers.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var ErrAlreadyRunning = errors.New("job is already running")

// Func is the unit of work a trigger fires.
type Func func(ctx context.Context) error

type entry struct {
	id      cron.EntryID
	trigger Trigger
	fn      Func
	running sync.Mutex
}

// Scheduler wraps cron so the next fire time is computed rather than polled for.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*entry
}

func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		ctx:     context.Background(),
		entries: map[string]*entry{},
	}
}

// Add registers fn under name. Names are unique.
func (s *Scheduler) Add(trigger Trigger, name string, fn Func) error {
	sched, err := trigger.Schedule()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return errors.Newf("job %q already registered", name)
	}

	e := &entry{trigger: trigger, fn: fn}
	e.id = s.cron.Schedule(sched, cron.FuncJob(func() {
		if err := s.invoke(s.runContext(), name, e); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.log.Error().Err(err).Str("job", name).Msg("Job failed")
		}
	}))
	s.entries[name] = e

	s.log.Info().
		Str("job", name).
		Str("trigger", trigger.String()).
		Time("next", trigger.Next(time.Now())).
		Msg("Job registered")
	return nil
}

// Next reports when name fires next, or the zero time for an unknown job.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	if next := s.cron.Entry(e.id).Next; !next.IsZero() {
		return next
	}
	return e.trigger.Next(time.Now())
}

// RunNow executes name immediately, outside its trigger.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return errors.Newf("unknown job %q", name)
	}
	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.invoke(ctx, name, e)
}

// Run starts the triggers and blocks until ctx is done, then waits for a
// running job to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Msg("Scheduler started")

	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) invoke(ctx context.Context, name string, e *entry) error {
	if !e.running.TryLock() {
		s.log.Warn().Str("job", name).Msg("Job still running, skipped")
		return ErrAlreadyRunning
	}
	defer e.running.Unlock()

	s.log.Debug().Str("job", name).Msg("Running job")
	if err := e.fn(ctx); err != nil {
		return err
	}
	s.log.Debug().Str("job", name).Time("next", e.trigger.Next(time.Now())).Msg("Job completed")
	return nil
}

// cronLogger routes cron's own messages into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
