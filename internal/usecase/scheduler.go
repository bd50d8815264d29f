package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/The-Juice-Real/redgenv2/internal/ports"
)

// Scheduler wires the interval driver with the pipeline use case.
type Scheduler struct {
	driver       ports.Scheduler
	pipeline     *Pipeline
	serviceTypes []string
	runTimeout   time.Duration
	logger       *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs, one per
// service type on every tick.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, serviceTypes []string, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		driver:       driver,
		pipeline:     pipeline,
		serviceTypes: serviceTypes,
		runTimeout:   runTimeout,
		logger:       logger,
	}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		for _, serviceType := range s.serviceTypes {
			if ctx.Err() != nil {
				return
			}
			s.runOnce(ctx, serviceType, trigger)
		}
	}

	return s.driver.Start(ctx, job)
}

func (s *Scheduler) runOnce(ctx context.Context, serviceType string, trigger time.Time) {
	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result, err := s.pipeline.Run(runCtx, serviceType)
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Error("scheduled run failed", "service_type", serviceType, "trigger", trigger, "error", err)
		return
	}
	s.logger.Info("scheduled run complete",
		"service_type", serviceType,
		"trigger", trigger,
		"prospects", len(result.Prospects),
		"cancelled", result.Stats.Cancelled)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
