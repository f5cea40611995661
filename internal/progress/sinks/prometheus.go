package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/parts-catalog-crawler/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Gauge
	tasksTotal    prometheus.Gauge
	tasksDone     *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	rawRecords    prometheus.Counter
	parts         prometheus.Counter
	rejected      prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partscrawler_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "partscrawler_runs_completed_total",
			Help: "Crawl runs finished, partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "partscrawler_last_run_duration_seconds",
			Help: "Wall time of the most recent run.",
		}),
		tasksTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "partscrawler_tasks",
			Help: "Tasks queued by the most recent run.",
		}),
		tasksDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "partscrawler_tasks_completed_total",
			Help: "Model pages processed, partitioned by result.",
		}, []string{"result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "partscrawler_task_duration_seconds",
			Help:    "Time per model page including the politeness delay.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"result"}),
		rawRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partscrawler_raw_records_total",
			Help: "Listings extracted before classification.",
		}),
		parts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partscrawler_parts_total",
			Help: "Listings accepted as parts.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "partscrawler_rejected_records_total",
			Help: "Listings rejected by the classifier.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.tasksTotal,
		s.tasksDone,
		s.taskDuration,
		s.rawRecords,
		s.parts,
		s.rejected,
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
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			s.tasksTotal.Set(float64(evt.Total))
		case progress.StageRunDone:
			result := "success"
			if evt.Note != "" {
				result = "error"
			}
			s.runsCompleted.WithLabelValues(result).Inc()
			s.runDuration.Set(evt.Dur.Seconds())
		case progress.StageTaskDone:
			s.observeTask(evt, "success")
			s.rawRecords.Add(float64(evt.Raw))
			s.parts.Add(float64(evt.Parts))
			s.rejected.Add(float64(evt.Rejected))
		case progress.StageTaskFailed:
			s.observeTask(evt, "error")
		}
	}
	return nil
}

func (s *PrometheusSink) observeTask(evt progress.Event, result string) {
	s.tasksDone.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.taskDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
