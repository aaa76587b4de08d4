package observability

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"creditnet/core/events"
	"creditnet/core/types"
)

var (
	eventCounterOnce sync.Once
	eventCounter     *prometheus.CounterVec
)

func eventsCounter() *prometheus.CounterVec {
	eventCounterOnce.Do(func() {
		eventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditnet",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Count of ledger events segmented by type.",
		}, []string{"type"})
		prometheus.MustRegister(eventCounter)
	})
	return eventCounter
}

// LogEmitter renders ledger events to structured logs and counts them by type.
type LogEmitter struct {
	logger  *slog.Logger
	counter *prometheus.CounterVec
}

// NewLogEmitter returns an emitter that writes every event through the given
// logger. A nil logger falls back to slog.Default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger, counter: eventsCounter()}
}

func (l *LogEmitter) Emit(ev events.Event) {
	if ev == nil {
		return
	}
	var rendered *types.Event
	if payload, ok := ev.(interface{ Event() *types.Event }); ok {
		rendered = payload.Event()
	}
	if rendered == nil {
		rendered = &types.Event{Type: ev.EventType()}
	}
	l.counter.WithLabelValues(rendered.Type).Inc()
	args := make([]any, 0, 2*len(rendered.Attributes)+2)
	args = append(args, "event", rendered.Type)
	for key, value := range rendered.Attributes {
		args = append(args, key, value)
	}
	l.logger.Info("ledger event", args...)
}
