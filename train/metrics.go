package train

import "github.com/prometheus/client_golang/prometheus"

type trainMetrics struct {
	epochs       prometheus.Counter
	steps        prometheus.Counter
	skipped      prometheus.Counter
	loss         prometheus.Gauge
	bestLoss     prometheus.Gauge
	epochSeconds prometheus.Histogram
}

// newTrainMetrics creates the collectors and registers them with reg when
// it is not nil.
func newTrainMetrics(reg prometheus.Registerer) (*trainMetrics, error) {
	m := &trainMetrics{
		epochs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedalign_epochs_total",
			Help: "Completed training epochs.",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedalign_steps_total",
			Help: "Optimizer steps taken.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedalign_skipped_batches_total",
			Help: "Batches skipped for having fewer rows than the batch size.",
		}),
		loss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "embedalign_epoch_loss",
			Help: "Average negative ELBO of the last epoch.",
		}),
		bestLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "embedalign_best_loss",
			Help: "Lowest epoch loss so far.",
		}),
		epochSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "embedalign_epoch_seconds",
			Help:    "Wall time per epoch.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.epochs, m.steps, m.skipped, m.loss, m.bestLoss, m.epochSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *trainMetrics) observe(stats EpochStats, best float64) {
	m.epochs.Inc()
	m.steps.Add(float64(stats.Steps))
	m.skipped.Add(float64(stats.Skipped))
	m.loss.Set(stats.Loss)
	m.bestLoss.Set(best)
	m.epochSeconds.Observe(stats.Seconds)
}
