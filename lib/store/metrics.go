package store

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// opMetrics records per operation and namespace counters and latencies in a metrics.Set.
// A non-empty adapter name is added as label to every metric, so several adapters can
// share one set.
type opMetrics struct {
	set     *metrics.Set
	adapter string
}

func newOpMetrics(set *metrics.Set, adapter string) *opMetrics {
	if set == nil {
		set = metrics.NewSet()
	}
	return &opMetrics{set: set, adapter: adapter}
}

// labels formats the label set of a metric, empty labels are left out
func (m *opMetrics) labels(op, namespace string) string {
	l := fmt.Sprintf(`op=%q`, op)
	if m.adapter != "" {
		l = fmt.Sprintf(`adapter=%q,%s`, m.adapter, l)
	}
	if namespace != "" {
		l += fmt.Sprintf(`,namespace=%q`, namespace)
	}
	return l
}

// observe records one finished operation
func (m *opMetrics) observe(op, namespace string, start time.Time, err error) {
	l := m.labels(op, namespace)
	m.set.GetOrCreateCounter("dockv_operations_total{" + l + "}").Inc()
	m.set.GetOrCreateHistogram("dockv_operation_duration_seconds{" + l + "}").UpdateDuration(start)
	if err != nil {
		m.set.GetOrCreateCounter(fmt.Sprintf("dockv_operation_errors_total{%s,code=%q}", l, CodeOf(err))).Inc()
	}
}

// gauge registers a gauge whose value is computed on every write.
// The first registration of a name wins, adapters sharing a set need distinct names.
func (m *opMetrics) gauge(name string, f func() float64) {
	if m.adapter != "" {
		name = fmt.Sprintf(`%s{adapter=%q}`, name, m.adapter)
	}
	m.set.GetOrCreateGauge(name, f)
}

func (m *opMetrics) write(w io.Writer) {
	m.set.WritePrometheus(w)
}
