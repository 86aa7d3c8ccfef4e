package dashboard

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"tradersentiment/logger"
)

// resourceSnapshot is one sample of host and process utilisation while the
// dashboard serves analytics.
type resourceSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	HostCPUPct    float64   `json:"host_cpu_percent"`
	HostMemoryPct float64   `json:"host_memory_percent"`
	ProcessCPUPct float64   `json:"process_cpu_percent"`
	ProcessRSS    uint64    `json:"process_rss"`
	DataDiskUsed  uint64    `json:"data_disk_used"`
	DataDiskPct   float64   `json:"data_disk_percent"`
}

type resourceSampler struct {
	mu       sync.RWMutex
	items    []resourceSnapshot
	limit    int
	interval time.Duration
	dataPath string

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Log
}

var (
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return cpu.PercentWithContext(ctx, interval, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
	processStatFn = func(ctx context.Context) (float64, uint64, error) {
		p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
		if err != nil {
			return 0, 0, err
		}
		pct, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			return 0, 0, err
		}
		info, err := p.MemoryInfoWithContext(ctx)
		if err != nil {
			return 0, 0, err
		}
		return pct, info.RSS, nil
	}
)

// newResourceSampler samples every interval and keeps the last limit
// snapshots. dataPath is the directory whose filesystem usage is reported.
func newResourceSampler(limit int, interval time.Duration, dataPath string, log *logger.Log) *resourceSampler {
	if limit <= 0 {
		limit = 200
	}
	if interval <= 0 {
		interval = time.Second
	}
	if dataPath == "" {
		dataPath = "."
	}
	return &resourceSampler{
		limit:    limit,
		interval: interval,
		dataPath: dataPath,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil {
		return
	}
	if s.running.Swap(true) {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *resourceSampler) snapshot() []resourceSnapshot {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]resourceSnapshot, len(s.items))
	copy(out, s.items)
	return out
}

func (s *resourceSampler) append(snapshot resourceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, snapshot)
	if len(s.items) > s.limit {
		s.items = append([]resourceSnapshot(nil), s.items[len(s.items)-s.limit:]...)
	}
}

func (s *resourceSampler) run(ctx context.Context) {
	defer s.running.Store(false)
	log := s.log.WithComponent("resource_sampler")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// cpu.Percent blocks for one interval and paces the loop.
		cpuSamples, err := cpuPercentFn(ctx, s.interval)
		if err != nil {
			log.WithError(err).Debug("failed to sample cpu usage")
			if !sleepCtx(ctx, s.interval) {
				return
			}
			continue
		}

		snap := resourceSnapshot{Timestamp: time.Now(), HostCPUPct: firstSample(cpuSamples)}
		if memStats, err := memoryStatsFn(ctx); err == nil {
			snap.HostMemoryPct = memStats.UsedPercent
		} else {
			log.WithError(err).Debug("failed to sample memory usage")
		}
		if pct, rss, err := processStatFn(ctx); err == nil {
			snap.ProcessCPUPct, snap.ProcessRSS = pct, rss
		} else {
			log.WithError(err).Debug("failed to sample process usage")
		}
		if diskStats, err := diskUsageFn(ctx, s.dataPath); err == nil {
			snap.DataDiskUsed, snap.DataDiskPct = diskStats.Used, diskStats.UsedPercent
		} else {
			log.WithError(err).Debug("failed to sample data disk usage")
		}

		s.append(snap)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func firstSample(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[0]
}
