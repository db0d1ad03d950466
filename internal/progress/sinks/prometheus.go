package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/tender-harvester/internal/progress"
)

// PrometheusSink exports harvest progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	rows           *prometheus.CounterVec
	detailFailures prometheus.Counter
	rowDuration    prometheus.Histogram
	pagesCompleted prometheus.Counter
	currentPage    prometheus.Gauge
	records        prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_runs_started_total",
			Help: "Total harvest runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_runs_completed_total",
			Help: "Total harvest runs finished, partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_run_duration_seconds",
			Help:    "Wall time per finished harvest run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_rows_total",
			Help: "Parent rows processed, partitioned by dedup outcome.",
		}, []string{"outcome"}),
		detailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_detail_failures_total",
			Help: "Rows whose detail panel could not be read.",
		}),
		rowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_row_duration_seconds",
			Help:    "Time spent on one expand/normalize/admit cycle.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		pagesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_pages_completed_total",
			Help: "Table pages fully processed.",
		}),
		currentPage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_current_page",
			Help: "Table page currently being harvested.",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_records",
			Help: "Records held in the result set.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.rows,
		s.detailFailures,
		s.rowDuration,
		s.pagesCompleted,
		s.currentPage,
		s.records,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.records.Set(float64(evt.Records))
	case progress.StageRunDone:
		s.finishRun(evt, "done")
	case progress.StageRunError:
		s.finishRun(evt, "error")
	case progress.StagePageStart:
		s.currentPage.Set(float64(evt.Page))
	case progress.StagePageDone:
		s.pagesCompleted.Inc()
		s.records.Set(float64(evt.Records))
	case progress.StageRowDone:
		s.rows.WithLabelValues(string(evt.Outcome)).Inc()
		if !evt.DetailOK {
			s.detailFailures.Inc()
		}
		if evt.Dur > 0 {
			s.rowDuration.Observe(evt.Dur.Seconds())
		}
		s.records.Set(float64(evt.Records))
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	s.records.Set(float64(evt.Records))
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
