package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"tradersentiment/logger"
)

// Metric is one structured pipeline event, for example the row count of a
// finished panel build.
type Metric struct {
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component"`
	Name      string        `json:"name"`
	Value     interface{}   `json:"value"`
	Type      string        `json:"type"`
	Fields    logger.Fields `json:"fields,omitempty"`
}

type MetricHandler func(Metric)

// MetricHandlerID identifies a registration. Zero is never issued.
type MetricHandlerID uint64

type subscription struct {
	id MetricHandlerID
	fn MetricHandler
}

// bus fans events out to subscribers. The subscriber list is replaced on
// every change, so publishing reads it without locking.
type bus struct {
	mu   sync.Mutex
	subs atomic.Pointer[[]subscription]
	next atomic.Uint64
}

func newBus() *bus {
	b := &bus{}
	b.subs.Store(&[]subscription{})
	return b
}

var events = newBus()

func (b *bus) subscribe(fn MetricHandler) MetricHandlerID {
	id := MetricHandlerID(b.next.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.subs.Load()
	updated := make([]subscription, len(cur), len(cur)+1)
	copy(updated, cur)
	updated = append(updated, subscription{id: id, fn: fn})
	b.subs.Store(&updated)
	return id
}

func (b *bus) unsubscribe(id MetricHandlerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.subs.Load()
	updated := make([]subscription, 0, len(cur))
	for _, s := range cur {
		if s.id != id {
			updated = append(updated, s)
		}
	}
	b.subs.Store(&updated)
}

func (b *bus) publish(m Metric) {
	for _, s := range *b.subs.Load() {
		s.fn(m)
	}
}

// RegisterMetricHandler subscribes handler to every emitted metric. A nil
// handler is ignored and yields 0.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	return events.subscribe(handler)
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	events.unsubscribe(id)
}

// EmitMetric logs the event (and publishes it to CloudWatch when that is
// configured), mirrors numeric gauges into Prometheus and hands the event to
// the registered handlers. Events without a name are dropped.
func EmitMetric(log *logger.Log, component string, name string, value interface{}, metricType string, fields logger.Fields) {
	if name == "" {
		return
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	own := copyFields(fields)
	log.LogMetric(component, name, value, metricType, copyFields(own))

	if metricType == "gauge" {
		if v, ok := asFloat(value); ok {
			setEventGauge(component, name, v)
		}
	}

	events.publish(Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    own,
	})
}

func copyFields(fields logger.Fields) logger.Fields {
	out := make(logger.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
