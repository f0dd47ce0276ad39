package reminder

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const TriggerManual = "manual"

type sweeper interface {
	Sweep(ctx context.Context, trigger string) (Result, error)
}

// Trigger names a schedule the sweep runs on.
type Trigger struct {
	Name     string
	Schedule Schedule
}

// Scheduler runs the sweep on every trigger's schedule, one goroutine per
// trigger. All triggers share the sweeper, which serializes the sweeps.
type Scheduler struct {
	sweeper  sweeper
	triggers []Trigger
	clock    clockwork.Clock
	logger   *zap.Logger
	onStatus func(serving bool)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(s sweeper, clock clockwork.Clock, logger *zap.Logger, triggers ...Trigger) *Scheduler {
	return &Scheduler{
		sweeper:  s,
		triggers: triggers,
		clock:    clock,
		logger:   logger.Named("reminder_scheduler"),
		onStatus: func(bool) {},
	}
}

// OnStatus registers a hook told when the scheduler starts and stops serving.
func (s *Scheduler) OnStatus(fn func(serving bool)) {
	s.onStatus = fn
}

// Start launches the trigger loops. It returns at once; Stop ends them.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.triggers {
		s.wg.Add(1)
		go s.loop(ctx, t)
		s.logger.Info("reminder trigger scheduled",
			zap.String("trigger", t.Name),
			zap.String("schedule", t.Schedule.String()),
			zap.Time("next", t.Schedule.Next(s.clock.Now())),
		)
	}
	s.onStatus(true)
}

func (s *Scheduler) loop(ctx context.Context, t Trigger) {
	defer s.wg.Done()
	for {
		now := s.clock.Now()
		timer := s.clock.NewTimer(t.Schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
			s.run(ctx, t.Name)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	if _, err := s.sweeper.Sweep(ctx, trigger); err != nil {
		s.logger.Error("reminder sweep failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

// RunNow sweeps immediately, waiting for any sweep already in flight.
func (s *Scheduler) RunNow(ctx context.Context) (Result, error) {
	return s.sweeper.Sweep(ctx, TriggerManual)
}

// Stop cancels the trigger loops and waits for an in-flight sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
	s.onStatus(false)
	s.logger.Info("reminder scheduler stopped")
}
