package prometheus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-labelwatch/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultBuckets covers call and delivery latencies in milliseconds.
var DefaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type Config struct {
	Namespace  string
	Registerer prom.Registerer
	Buckets    []float64
}

// Recorder implements core.MetricsRecorder on Prometheus vectors. Dotted
// metric names become underscored; counters gain a _total suffix. The label
// set of a metric is fixed by its first observation: later tags missing a
// label record it empty and unknown tags are dropped.
type Recorder struct {
	namespace  string
	registerer prom.Registerer
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
}

type counter struct {
	vec    *prom.CounterVec
	labels []string
}

type histogram struct {
	vec    *prom.HistogramVec
	labels []string
}

func NewRecorder(cfg Config) *Recorder {
	if cfg.Registerer == nil {
		cfg.Registerer = prom.DefaultRegisterer
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = DefaultBuckets
	}
	return &Recorder{
		namespace:  sanitize(cfg.Namespace),
		registerer: cfg.Registerer,
		buckets:    slices.Clone(cfg.Buckets),
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
	}
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	c, err := r.counter(name, tags)
	if err != nil {
		return
	}
	c.vec.WithLabelValues(labelValues(c.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	h, err := r.histogram(name, tags)
	if err != nil {
		return
	}
	h.vec.WithLabelValues(labelValues(h.labels, tags)...).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c, nil
	}
	labels := labelNames(tags)
	vec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: r.namespace,
		Name:      sanitize(name) + "_total",
		Help:      fmt.Sprintf("Count of %s events.", name),
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prom.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	c := &counter{vec: vec, labels: labels}
	r.counters[name] = c
	return c, nil
}

func (r *Recorder) histogram(name string, tags map[string]string) (*histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h, nil
	}
	labels := labelNames(tags)
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: r.namespace,
		Name:      sanitize(name),
		Help:      fmt.Sprintf("Distribution of %s.", name),
		Buckets:   r.buckets,
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prom.HistogramVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	h := &histogram{vec: vec, labels: labels}
	r.histograms[name] = h
	return h, nil
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		if key = sanitize(key); key != "" {
			names = append(names, key)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func labelValues(labels []string, tags map[string]string) []string {
	byLabel := make(map[string]string, len(tags))
	for key, value := range tags {
		byLabel[sanitize(key)] = value
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = byLabel[label]
	}
	return values
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
