package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/readtime-server/internal/config"
	"github.com/listenupapp/readtime-server/internal/logger"
	"github.com/listenupapp/readtime-server/internal/service"
)

// SweepJob runs the sweeper on its interval.
type SweepJob struct {
	sweeper *service.Sweeper
	cancel  context.CancelFunc
	done    chan struct{}
}

// Shutdown implements do.Shutdownable.
func (j *SweepJob) Shutdown() error {
	if j.cancel == nil {
		return nil
	}
	j.cancel()
	j.sweeper.Stop()
	<-j.done
	return nil
}

// ProvideSweepJob starts scheduled sweeps unless SWEEP_ENABLED is false.
func ProvideSweepJob(i do.Injector) (*SweepJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	sweeper := do.MustInvoke[*service.Sweeper](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Sweeper.Enabled {
		log.Info("Scheduled sweeps disabled by configuration")
		return &SweepJob{sweeper: sweeper}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	log.Info("Sweep job started", "interval", sweeper.Interval())

	return &SweepJob{sweeper: sweeper, cancel: cancel, done: done}, nil
}
