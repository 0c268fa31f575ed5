package models

// Decision values produced by the three-tier policy
const (
	DecisionAuto       = "auto"
	DecisionReview     = "review"
	DecisionNewCluster = "new_cluster"
)

// Decision reasons recorded on the dedup record
const (
	ReasonAutoMatch            = "auto_match"
	ReasonReviewMatch          = "review_match"
	ReasonNoCandidates         = "no_candidates"
	ReasonBelowReviewThreshold = "below_review_threshold"
	ReasonAllCandidatesFull    = "all_candidates_full"
)

// DedupSignals carries the structured-field signals that contributed to a
// confidence score.
type DedupSignals struct {
	SubcategoryMatch bool    `json:"subcategory_match"`
	CategoryMatch    bool    `json:"category_match"`
	TimeProximity    float64 `json:"time_proximity"`
}

// DedupDecision is the per-ticket record of the dedup outcome, persisted on
// the ticket at ingest.
type DedupDecision struct {
	Decision         string       `json:"decision"`
	DecisionReason   string       `json:"decision_reason"`
	ConfidenceScore  float64      `json:"confidence_score"`
	MatchedClusterID string       `json:"matched_cluster_id,omitempty"`
	SemanticScore    float64      `json:"semantic_score"`
	Signals          DedupSignals `json:"signals"`
}
