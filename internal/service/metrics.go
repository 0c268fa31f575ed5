package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dedupDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedup_decisions_total",
		Help: "Dedup decisions by outcome (auto, review, new_cluster)",
	}, []string{"decision"})

	etagRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedup_cluster_etag_retries_total",
		Help: "Conditional cluster replaces retried after losing a write race",
	})

	mergeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dedup_merge_operations_total",
		Help: "Merge protocol operations by type (merge, revert)",
	}, []string{"operation"})

	embedFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedup_embedding_failures_total",
		Help: "Embedding calls that failed and aborted an ingest",
	})

	clustersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dedup_clusters_expired_total",
		Help: "Clusters transitioned to expired by the sweeper",
	})
)
