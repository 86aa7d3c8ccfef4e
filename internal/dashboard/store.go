package dashboard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"tradersentiment/internal/metrics"
	"tradersentiment/processor"
)

// metricStore keeps the most recent pipeline metric events for /api/metrics.
type metricStore struct {
	mu    sync.RWMutex
	items []metrics.Metric
	limit int
}

func newMetricStore(limit int) *metricStore {
	if limit <= 0 {
		limit = 200
	}
	return &metricStore{limit: limit}
}

func (s *metricStore) handle(metric metrics.Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, metric)
	if len(s.items) > s.limit {
		s.items = append([]metrics.Metric(nil), s.items[len(s.items)-s.limit:]...)
	}
}

// snapshot returns retained metrics, oldest first. A non-empty component
// keeps only that component's events.
func (s *metricStore) snapshot(component string) []metrics.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]metrics.Metric, 0, len(s.items))
	for _, m := range s.items {
		if component != "" && m.Component != component {
			continue
		}
		out = append(out, m)
	}
	return out
}

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook retaining the latest entries for /api/logs.
type logStore struct {
	mu      sync.RWMutex
	items   []logRecord
	limit   int
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	if limit <= 0 {
		limit = 200
	}
	ls := &logStore{limit: limit}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}
	if runID, ok := entry.Data["run_id"].(string); ok {
		record.RunID = runID
	}

	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" || k == "run_id" {
				continue
			}
			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	s.mu.Lock()
	s.items = append(s.items, record)
	if len(s.items) > s.limit {
		s.items = append([]logRecord(nil), s.items[len(s.items)-s.limit:]...)
	}
	s.mu.Unlock()
	return nil
}

func (s *logStore) snapshot() []logRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]logRecord, len(s.items))
	copy(out, s.items)
	return out
}

func (s *logStore) close() {
	s.enabled.Store(false)
}

// Signer reports a modification signature for a source path.
type Signer interface {
	Stat(ctx context.Context, path string) (string, error)
}

// Builder runs the pipeline for a pair of sources.
type Builder func(ctx context.Context, tradesPath, sentimentPath string) (*processor.Result, error)

type cacheKey struct {
	tradesPath, sentimentPath string
	tradesSig, sentimentSig   string
}

// panelCache memoizes the last successful pipeline run keyed by both source
// paths and their modification signatures. Failed builds are not cached.
type panelCache struct {
	mu     sync.Mutex
	signer Signer
	build  Builder
	key    cacheKey
	result *processor.Result
	hits   atomic.Int64
	builds atomic.Int64
}

func newPanelCache(signer Signer, build Builder) *panelCache {
	return &panelCache{signer: signer, build: build}
}

// get returns the cached result when neither source changed, rebuilding
// otherwise. The returned result must not be mutated.
func (c *panelCache) get(ctx context.Context, tradesPath, sentimentPath string) (*processor.Result, error) {
	tradesSig, err := c.signer.Stat(ctx, tradesPath)
	if err != nil {
		return nil, fmt.Errorf("stat trades: %w", err)
	}
	sentimentSig, err := c.signer.Stat(ctx, sentimentPath)
	if err != nil {
		return nil, fmt.Errorf("stat sentiment: %w", err)
	}
	key := cacheKey{tradesPath, sentimentPath, tradesSig, sentimentSig}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result != nil && c.key == key {
		c.hits.Add(1)
		return c.result, nil
	}

	res, err := c.build(ctx, tradesPath, sentimentPath)
	if err != nil {
		return nil, err
	}
	c.builds.Add(1)
	c.key, c.result = key, res
	return res, nil
}

func (c *panelCache) invalidate() {
	c.mu.Lock()
	c.result = nil
	c.key = cacheKey{}
	c.mu.Unlock()
}
