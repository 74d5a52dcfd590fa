package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusAdapter implements Metrics and exports Prometheus counters
// and a histogram, grounded on IvanBrykalov-shardcache's
// metrics/prom.Adapter (namespace/subsystem/constLabels shape,
// MustRegister on construction).
type PrometheusAdapter struct {
	sweeps        prometheus.Counter
	sweepSites    prometheus.Counter
	sweepEvicted  prometheus.Counter
	sweepDuration prometheus.Histogram

	puzzleCached prometheus.Counter
	puzzleHits   prometheus.Counter
	puzzleMisses prometheus.Counter

	tokenCached    prometheus.Counter
	verifyOutcomes *prometheus.CounterVec
}

// NewPrometheusAdapter constructs a Metrics implementation that exports
// to reg (nil => prometheus.DefaultRegisterer), under namespace "powcore"
// and the given subsystem (e.g. "master", "challenge").
func NewPrometheusAdapter(reg prometheus.Registerer, subsystem string, constLabels prometheus.Labels) *PrometheusAdapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &PrometheusAdapter{
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powcore", Subsystem: subsystem, Name: "gc_sweeps_total",
			Help: "Completed GC cleanup passes", ConstLabels: constLabels,
		}),
		sweepSites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powcore", Subsystem: subsystem, Name: "gc_sites_scanned_total",
			Help: "Sites scanned across all GC passes", ConstLabels: constLabels,
		}),
		sweepEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powcore", Subsystem: subsystem, Name: "gc_sites_evicted_total",
			Help: "Sites evicted across all GC passes", ConstLabels: constLabels,
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "powcore", Subsystem: subsystem, Name: "gc_sweep_duration_seconds",
			Help: "Duration of a single GC cleanup pass", ConstLabels: constLabels,
			Buckets: prometheus.DefBuckets,
		}),
		puzzleCached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powcore", Subsystem: subsystem, Name: "puzzle_cached_total",
			Help: "Puzzles inserted into the challenge cache", ConstLabels: constLabels,
		}),
		puzzleHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powcore", Subsystem: subsystem, Name: "puzzle_retrieve_hits_total",
			Help: "RetrievePoW calls that found a puzzle", ConstLabels: constLabels,
		}),
		puzzleMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powcore", Subsystem: subsystem, Name: "puzzle_retrieve_misses_total",
			Help: "RetrievePoW calls that found nothing (consumed or expired)", ConstLabels: constLabels,
		}),
		tokenCached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "powcore", Subsystem: subsystem, Name: "token_cached_total",
			Help: "Redemption tokens inserted into the challenge cache", ConstLabels: constLabels,
		}),
		verifyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "powcore", Subsystem: subsystem, Name: "verify_outcomes_total",
			Help: "VerifyResult outcomes by result", ConstLabels: constLabels,
		}, []string{"result"}),
	}
	reg.MustRegister(
		a.sweeps, a.sweepSites, a.sweepEvicted, a.sweepDuration,
		a.puzzleCached, a.puzzleHits, a.puzzleMisses,
		a.tokenCached, a.verifyOutcomes,
	)
	return a
}

func (a *PrometheusAdapter) Sweep(scanned, evicted int, dur time.Duration) {
	a.sweeps.Inc()
	a.sweepSites.Add(float64(scanned))
	a.sweepEvicted.Add(float64(evicted))
	a.sweepDuration.Observe(dur.Seconds())
}

func (a *PrometheusAdapter) PuzzleCached() { a.puzzleCached.Inc() }
func (a *PrometheusAdapter) PuzzleHit()    { a.puzzleHits.Inc() }
func (a *PrometheusAdapter) PuzzleMiss()   { a.puzzleMisses.Inc() }
func (a *PrometheusAdapter) TokenCached()  { a.tokenCached.Inc() }

func (a *PrometheusAdapter) VerifyOutcome(ok bool) {
	if ok {
		a.verifyOutcomes.WithLabelValues("success").Inc()
		return
	}
	a.verifyOutcomes.WithLabelValues("failure").Inc()
}

var _ Metrics = (*PrometheusAdapter)(nil)
