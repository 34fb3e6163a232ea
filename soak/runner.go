package soak

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"pricefuse/logger"
)

// Runner drives one soak run: it samples the engine at a fixed interval
// until the context is cancelled or the configured duration elapses, then
// derives the summary.
type Runner struct {
	client   *Client
	interval time.Duration
	duration time.Duration
	log      *logger.Log
}

// NewRunner configures a run against client. A zero duration runs until the
// context is cancelled.
func NewRunner(client *Client, interval, duration time.Duration, log *logger.Log) *Runner {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Runner{
		client:   client,
		interval: interval,
		duration: duration,
		log:      log,
	}
}

// Run executes the soak run and returns the finished report. Samples that
// fail are logged and skipped; the run only aborts when the engine's policy
// snapshot cannot be fetched at startup.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:        uuid.New().String(),
		StartTime:    time.Now().UTC(),
		Backgrounded: !isatty.IsTerminal(os.Stdout.Fd()),
	}

	policy, err := r.client.Policy(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch policy snapshot: %w", err)
	}
	report.Config = policy

	r.log.WithComponent("soak").WithFields(logger.Fields{
		"run_id":   report.RunID,
		"interval": r.interval.String(),
		"duration": r.duration.String(),
	}).Info("soak run started")

	var deadline <-chan time.Time
	if r.duration > 0 {
		timer := time.NewTimer(r.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sample(ctx, report)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			r.sample(ctx, report)
		}
	}

	report.EndTime = time.Now().UTC()
	report.Summary = BuildSummary(report.Snapshots)

	r.log.WithComponent("soak").WithFields(logger.Fields{
		"run_id":  report.RunID,
		"samples": report.Summary.Samples,
		"notes":   len(report.Summary.Notes),
	}).Info("soak run finished")

	return report, nil
}

func (r *Runner) sample(ctx context.Context, report *Report) {
	snap, err := r.client.Snapshot(ctx)
	if err != nil {
		r.log.WithComponent("soak").WithError(err).Warn("sample failed")
		return
	}
	if report.Asset == "" {
		report.Asset = snap.Asset
	}
	report.Snapshots = append(report.Snapshots, snap)

	r.log.WithComponent("soak").WithFields(logger.Fields{
		"samples": len(report.Snapshots),
		"version": snap.Version,
		"health":  string(snap.Health.Overall),
	}).Debug("sample collected")
}
