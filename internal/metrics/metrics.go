// Package metrics 定义服务的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 一组指标，注册到给定 Registerer。
type Metrics struct {
	SignalsIssued       *prometheus.CounterVec
	SignalsRenewed      prometheus.Counter
	Validations         *prometheus.CounterVec
	ValidationElapsed   prometheus.Histogram
	ActiveRefreshers    prometheus.Gauge
	Confirmations       prometheus.Counter
	DeliveryFailures    prometheus.Counter
	TransactionsCreated *prometheus.CounterVec
}

// New 创建并注册指标；reg 为 nil 时只创建不注册（测试用）。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echokey", Name: "signals_issued_total", Help: "Signals issued, by network.",
		}, []string{"network"}),
		SignalsRenewed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echokey", Name: "signals_renewed_total", Help: "Signals renewed by the refresh scheduler.",
		}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echokey", Name: "validations_total", Help: "Validation outcomes, by kind.",
		}, []string{"kind"}),
		ValidationElapsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "echokey", Name: "validation_elapsed_seconds", Help: "Seconds between issuance and validation.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}),
		ActiveRefreshers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echokey", Name: "refresh_active", Help: "Running refresh schedulers.",
		}),
		Confirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echokey", Name: "confirmations_total", Help: "Confirmation events applied.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echokey", Name: "delivery_failures_total", Help: "Channel 2 deliveries that failed.",
		}),
		TransactionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echokey", Name: "transactions_created_total", Help: "Transactions created, by network.",
		}, []string{"network"}),
	}
	if reg != nil {
		reg.MustRegister(m.SignalsIssued, m.SignalsRenewed, m.Validations, m.ValidationElapsed,
			m.ActiveRefreshers, m.Confirmations, m.DeliveryFailures, m.TransactionsCreated)
	}
	return m
}
