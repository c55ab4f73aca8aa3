package prometheus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-marketplace/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultLabels is the label set attached to every marketplace metric. Tags
// outside this set are dropped and missing tags are exported empty.
var DefaultLabels = []string{
	"operation",
	"status",
	"order_type",
	"target_status",
	"notification_type",
	"channel",
	"event",
}

var DefaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Recorder implements core.MetricsRecorder on top of prometheus vectors that
// are created and registered on first use.
type Recorder struct {
	registerer prom.Registerer
	namespace  string
	labels     []string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
	failures   int
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitizeName(namespace)
	}
}

func WithLabels(labels ...string) Option {
	return func(r *Recorder) {
		if len(labels) > 0 {
			r.labels = append([]string(nil), labels...)
		}
	}
}

func WithBuckets(buckets ...float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func NewRecorder(registerer prom.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	r := &Recorder{
		registerer: registerer,
		labels:     append([]string(nil), DefaultLabels...),
		buckets:    append([]float64(nil), DefaultBuckets...),
		counters:   map[string]*prom.CounterVec{},
		histograms: map[string]*prom.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter := r.counter(name)
	if counter == nil {
		return
	}
	counter.With(r.labelValues(tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram := r.histogram(name)
	if histogram == nil {
		return
	}
	histogram.With(r.labelValues(tags)).Observe(value)
}

// RegistrationFailures reports how many metrics could not be registered.
func (r *Recorder) RegistrationFailures() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func (r *Recorder) counter(name string) *prom.CounterVec {
	metricName := r.metricName(name)
	if metricName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[metricName]; ok {
		return existing
	}
	vec := prom.NewCounterVec(prom.CounterOpts{
		Name: metricName,
		Help: fmt.Sprintf("Marketplace counter %s.", strings.TrimSpace(name)),
	}, r.labels)
	registered, err := r.register(vec)
	if err != nil {
		r.failures++
		return nil
	}
	counter, ok := registered.(*prom.CounterVec)
	if !ok {
		r.failures++
		return nil
	}
	r.counters[metricName] = counter
	return counter
}

func (r *Recorder) histogram(name string) *prom.HistogramVec {
	metricName := r.metricName(name)
	if metricName == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[metricName]; ok {
		return existing
	}
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Name:    metricName,
		Help:    fmt.Sprintf("Marketplace histogram %s.", strings.TrimSpace(name)),
		Buckets: r.buckets,
	}, r.labels)
	registered, err := r.register(vec)
	if err != nil {
		r.failures++
		return nil
	}
	histogram, ok := registered.(*prom.HistogramVec)
	if !ok {
		r.failures++
		return nil
	}
	r.histograms[metricName] = histogram
	return histogram
}

// register returns the collector already registered under the same
// descriptor when there is one.
func (r *Recorder) register(collector prom.Collector) (prom.Collector, error) {
	err := r.registerer.Register(collector)
	if err == nil {
		return collector, nil
	}
	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		return already.ExistingCollector, nil
	}
	return nil, err
}

func (r *Recorder) labelValues(tags map[string]string) prom.Labels {
	values := make(prom.Labels, len(r.labels))
	for _, label := range r.labels {
		values[label] = strings.TrimSpace(tags[label])
	}
	return values
}

func (r *Recorder) metricName(name string) string {
	name = sanitizeName(name)
	if name == "" {
		return ""
	}
	if r.namespace != "" && !strings.HasPrefix(name, r.namespace+"_") {
		return r.namespace + "_" + name
	}
	return name
}

// sanitizeName maps a dotted metric name such as
// "marketplace.order.publish.total" to "marketplace_order_publish_total".
func sanitizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for i, ch := range name {
		valid := (ch >= 'a' && ch <= 'z') || ch == '_' || (i > 0 && ch >= '0' && ch <= '9')
		if !valid {
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		b.WriteRune(ch)
		lastUnderscore = ch == '_'
	}
	return strings.Trim(b.String(), "_")
}

var _ core.MetricsRecorder = (*Recorder)(nil)
