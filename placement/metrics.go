package placement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeLabel = "outcome"

	outcomeFastPath   = "fast_path"
	outcomeMoved      = "moved"
	outcomeNotFound   = "not_found"
	outcomeDegenerate = "degenerate_basis"
)

var (
	placementSearches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "placement_searches_total",
		Help: "The number of position searches by outcome.",
	}, []string{outcomeLabel})

	placementCandidatesSampled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "placement_candidates_sampled_total",
		Help: "The number of ring candidates tested.",
	})

	placementFallbackResidual = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "placement_fallback_residual_area",
		Help:    "The total overlap area of least-overlap fallback results.",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 8),
	})

	revalidationTags = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revalidation_tags_total",
		Help: "The number of tags examined by batch revalidation.",
	})

	revalidationProposals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revalidation_proposals_total",
		Help: "The number of displacement proposals surfaced by batch revalidation.",
	})
)

func instrumentSearch(outcome string) {
	placementSearches.
		With(prometheus.Labels{outcomeLabel: outcome}).
		Inc()
}

func instrumentCandidateSampled() {
	placementCandidatesSampled.Inc()
}

func instrumentFallback(residual float64) {
	placementFallbackResidual.Observe(residual)
}

func instrumentRevalidatedTag() {
	revalidationTags.Inc()
}

func instrumentProposal() {
	revalidationProposals.Inc()
}
