package memmon

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Config configures memory sampling.
type Config struct {
	// Interval is the time between two samples
	Interval time.Duration `conf:"interval"`
}

func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
	}
}

// Sampler reads the resident memory of a process.
type Sampler interface {
	RSS(ctx context.Context, pid int) (uint64, error)
}

// ProcessSampler samples memory through the OS process table.
type ProcessSampler struct{}

func (ProcessSampler) RSS(ctx context.Context, pid int) (uint64, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, err
	}

	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}

	return info.RSS, nil
}

// Target is a process watched by the monitor.
type Target struct {
	PID int

	// Threshold returns the current limit in bytes, zero disables it.
	// It is read on every sample.
	Threshold func() uint64

	// Record receives every sample
	Record func(rss uint64)
}

// Monitor samples resident memory at a fixed interval.
type Monitor struct {
	interval time.Duration
	sampler  Sampler
	log      *zap.Logger
}

func New(config Config, sampler Sampler, log *zap.Logger) *Monitor {
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}

	if sampler == nil {
		sampler = ProcessSampler{}
	}

	return &Monitor{
		interval: interval,
		sampler:  sampler,
		log:      log.Named("memmon"),
	}
}

// Watch samples t until ctx is done or a sample exceeds the threshold.
// It returns the exceeding sample and true in the latter case.
func (m *Monitor) Watch(ctx context.Context, t Target) (uint64, bool) {
	log := m.log.With(zap.Int("pid", t.PID))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, false
		case <-ticker.C:
		}

		rss, err := m.sampler.RSS(ctx, t.PID)
		if err != nil {
			// the process may have exited between two ticks
			log.Debug("failed to sample memory", zap.Error(err))
			continue
		}

		// sampling may have raced with the process leaving Running
		if ctx.Err() != nil {
			return 0, false
		}

		if t.Record != nil {
			t.Record(rss)
		}

		threshold := uint64(0)
		if t.Threshold != nil {
			threshold = t.Threshold()
		}

		if threshold > 0 && rss > threshold {
			log.Info("memory threshold exceeded",
				zap.Uint64("rss", rss),
				zap.Uint64("threshold", threshold),
			)
			return rss, true
		}
	}
}
