// Package metrics exposes the service's Prometheus collectors.
// All recording methods are safe to call on a nil *Collector.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveTrips    prometheus.Gauge
	TripsStarted   prometheus.Counter
	TripsCompleted prometheus.Counter
	TripsReset     prometheus.Counter
	StopsSkipped   prometheus.Counter

	PositionsPublished prometheus.Counter
	StoreWriteErrors   *prometheus.CounterVec // collection label
	BoardingDecisions  *prometheus.CounterVec // outcome label: boarded|not_boarded

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	LegDuration     prometheus.Histogram
	PublishDuration prometheus.Histogram

	StepDelay prometheus.Gauge // seconds
}

func NewCollector(stepDelay time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schoolbus_active_trips",
			Help: "Number of vehicles currently running a trip.",
		}),
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolbus_trips_started_total",
			Help: "Total trips started.",
		}),
		TripsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolbus_trips_completed_total",
			Help: "Total trips that returned to the depot.",
		}),
		TripsReset: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolbus_trips_reset_total",
			Help: "Total trip resets.",
		}),
		StopsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolbus_stops_skipped_total",
			Help: "Stops dropped because the rider stopped attending.",
		}),
		PositionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolbus_positions_published_total",
			Help: "Vehicle positions written to the store.",
		}),
		StoreWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolbus_store_write_errors_total",
			Help: "Failed store writes by collection.",
		}, []string{"collection"}),
		BoardingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolbus_boarding_decisions_total",
			Help: "Boarding decisions recorded by outcome.",
		}, []string{"outcome"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolbus_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolbus_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schoolbus_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		LegDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schoolbus_leg_duration_seconds",
			Help:    "Wall time to drive one leg.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schoolbus_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		StepDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schoolbus_sim_step_delay_seconds",
			Help: "Delay between interpolation steps.",
		}),
	}

	reg.MustRegister(
		c.ActiveTrips, c.TripsStarted, c.TripsCompleted, c.TripsReset, c.StopsSkipped,
		c.PositionsPublished, c.StoreWriteErrors, c.BoardingDecisions,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.LegDuration, c.PublishDuration, c.StepDelay,
	)
	c.StepDelay.Set(stepDelay.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on addr.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", addr))
	return srv
}

func (c *Collector) TripStarted() {
	if c == nil {
		return
	}
	c.TripsStarted.Inc()
	c.ActiveTrips.Inc()
}

func (c *Collector) TripFinished(completed bool) {
	if c == nil {
		return
	}
	if completed {
		c.TripsCompleted.Inc()
	} else {
		c.TripsReset.Inc()
	}
	c.ActiveTrips.Dec()
}

func (c *Collector) StopSkipped() {
	if c == nil {
		return
	}
	c.StopsSkipped.Inc()
}

func (c *Collector) LegDriven(d time.Duration) {
	if c == nil {
		return
	}
	c.LegDuration.Observe(d.Seconds())
}

func (c *Collector) PositionPublished() {
	if c == nil {
		return
	}
	c.PositionsPublished.Inc()
}

func (c *Collector) StoreWriteFailed(collection string) {
	if c == nil {
		return
	}
	c.StoreWriteErrors.WithLabelValues(collection).Inc()
}

func (c *Collector) BoardingRecorded(boarded bool) {
	if c == nil {
		return
	}
	outcome := "not_boarded"
	if boarded {
		outcome = "boarded"
	}
	c.BoardingDecisions.WithLabelValues(outcome).Inc()
}

// The methods below satisfy publisher.PublisherMetrics.

func (c *Collector) NATSPublishedInc() {
	if c == nil {
		return
	}
	c.NATSPublished.Inc()
}

func (c *Collector) NATSPublishErrInc() {
	if c == nil {
		return
	}
	c.NATSPublishErrs.Inc()
}

func (c *Collector) PublishObserve(d time.Duration) {
	if c == nil {
		return
	}
	c.PublishDuration.Observe(d.Seconds())
}

func (c *Collector) NATSSetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
