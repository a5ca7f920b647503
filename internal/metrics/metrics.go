// Package metrics
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/withinboredom/open-handshake/internal/utils"
)

// Metrics exposes the bot's operational counters.
type Metrics struct {
	registry *prometheus.Registry

	Ticks          prometheus.Counter
	TickErrors     prometheus.Counter
	OrderMutations *prometheus.CounterVec
	GatewayRetries prometheus.Counter
	Equity         prometheus.Gauge
	Rate           prometheus.Gauge
	RegimeSwaps    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Ticks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_ticks_total",
		Help: "Completed trading loop iterations.",
	})
	m.TickErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_tick_errors_total",
		Help: "Iterations that failed with a recoverable error.",
	})
	m.OrderMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_order_mutations_total",
		Help: "Orders placed or canceled, by side.",
	}, []string{"side"})
	m.GatewayRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_gateway_retries_total",
		Help: "Exchange requests that needed a retry.",
	})
	m.Equity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_equity_base",
		Help: "Combined account value in the base asset.",
	})
	m.Rate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bot_conversion_rate",
		Help: "Current quote per base conversion rate.",
	})
	m.RegimeSwaps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_regime_swaps_total",
		Help: "Strategy changes driven by the trend signal.",
	})

	m.registry.MustRegister(
		m.Ticks, m.TickErrors, m.OrderMutations,
		m.GatewayRetries, m.Equity, m.Rate, m.RegimeSwaps,
	)
	return m
}

// Serve blocks on an HTTP listener exposing /metrics until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			utils.GetLogger().Printf("Metrics | shutdown: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
