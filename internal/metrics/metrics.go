package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds the settlement collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	purchasesTotal      *prometheus.CounterVec
	ticketRefundsTotal  prometheus.Counter
	refundedAmountTotal prometheus.Counter
	drawsTotal          *prometheus.CounterVec
	cancellationsTotal  *prometheus.CounterVec
	sweepRunsTotal      *prometheus.CounterVec
	sweepLastRunUnix    prometheus.Gauge
	sweepLastFound      prometheus.Gauge
	outboxPublishTotal  *prometheus.CounterVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		purchasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "tickets",
				Name:      "purchases_total",
				Help:      "Ticket purchase attempts partitioned by result.",
			},
			[]string{"result"},
		),
		ticketRefundsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "tickets",
				Name:      "refunds_total",
				Help:      "Tickets refunded to their buyers.",
			},
		),
		refundedAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "tickets",
				Name:      "refunded_amount_total",
				Help:      "Money returned to buyers by refunds.",
			},
		),
		drawsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "draws",
				Name:      "total",
				Help:      "Draw attempts partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		cancellationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "cancellations",
				Name:      "total",
				Help:      "Raffle cancellations partitioned by origin.",
			},
			[]string{"origin"},
		),
		sweepRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "sweep",
				Name:      "runs_total",
				Help:      "Expiry sweep runs partitioned by result.",
			},
			[]string{"result"},
		),
		sweepLastRunUnix: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "raffle",
				Subsystem: "sweep",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent sweep.",
			},
		),
		sweepLastFound: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "raffle",
				Subsystem: "sweep",
				Name:      "last_found",
				Help:      "Expired raffles found by the most recent sweep.",
			},
		),
		outboxPublishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raffle",
				Subsystem: "outbox",
				Name:      "publish_total",
				Help:      "Outbox publish attempts partitioned by result.",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) ObservePurchase(result string) {
	if m == nil {
		return
	}
	m.purchasesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRefunds(tickets int, amount decimal.Decimal) {
	if m == nil || tickets <= 0 {
		return
	}
	m.ticketRefundsTotal.Add(float64(tickets))
	m.refundedAmountTotal.Add(amount.InexactFloat64())
}

func (m *Metrics) ObserveDraw(outcome string) {
	if m == nil {
		return
	}
	m.drawsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCancellation(origin string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(origin).Inc()
}

func (m *Metrics) ObserveSweep(found int, failed bool, err error) {
	if m == nil {
		return
	}
	m.sweepLastRunUnix.Set(float64(time.Now().UTC().Unix()))
	m.sweepLastFound.Set(float64(found))
	switch {
	case err != nil:
		m.sweepRunsTotal.WithLabelValues("error").Inc()
	case failed:
		m.sweepRunsTotal.WithLabelValues("partial").Inc()
	default:
		m.sweepRunsTotal.WithLabelValues("success").Inc()
	}
}

func (m *Metrics) ObserveOutboxPublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.outboxPublishTotal.WithLabelValues("error").Inc()
		return
	}
	m.outboxPublishTotal.WithLabelValues("success").Inc()
}
