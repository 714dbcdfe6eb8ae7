package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/robfig/cron/v3"
)

// Poller periodically drives SyncJenkins so the run history converges even
// when webhook delivery is unreliable or disabled.
type Poller struct {
	svc      *Service
	interval time.Duration
	cron     *cron.Cron
	cancel   context.CancelFunc
}

// NewPoller creates a poller ticking at the given interval. Overlapping
// cycles are skipped rather than stacked.
func NewPoller(svc *Service, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		svc:      svc,
		interval: interval,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DefaultLogger),
		)),
	}
}

// Start schedules the sync loop.
func (p *Poller) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := p.cron.AddFunc(spec, func() { p.runCycle(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule poller: %w", err)
	}
	p.cron.Start()
	hlog.Infof("jenkins poller started, interval %s", p.interval)
	return nil
}

func (p *Poller) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, 2*p.interval)
	defer cancel()

	created, err := p.svc.SyncJenkins(cycleCtx)
	if err != nil {
		hlog.Errorf("jenkins auto-sync: %v", err)
		return
	}
	hlog.Infof("jenkins auto-sync completed, %d new runs", created)
}

// Stop halts scheduling and waits for an in-flight cycle to finish, up to
// the caller's deadline. Each per-build reconcile commits independently, so
// abandoning a cycle leaves no partial record mutation behind.
func (p *Poller) Stop(ctx context.Context) {
	if p.cancel != nil {
		defer p.cancel()
	}
	done := p.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		hlog.Warnf("jenkins poller stop timed out, abandoning in-flight cycle")
	}
}
