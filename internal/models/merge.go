package models

import "time"

// MergeStatus represents the state of a merge operation
type MergeStatus string

const (
	MergeStatusCompleted MergeStatus = "completed"
	MergeStatusReverted  MergeStatus = "reverted"
)

// MergeBehavior is a label carried for downstream tooling; the cluster state
// machine treats all behaviors identically.
type MergeBehavior string

const (
	MergeKeepLatest   MergeBehavior = "keep_latest"
	MergeCombineNotes MergeBehavior = "combine_notes"
	MergeRetainAll    MergeBehavior = "retain_all"
)

// TicketSnapshot captures the fields of a secondary ticket that a revert
// must restore, taken immediately before the merge mutates it.
type TicketSnapshot struct {
	ClusterID    string    `json:"cluster_id"`
	MergedIntoID string    `json:"merged_into_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MergeOperation records an operator-initiated merge of the secondary
// members of a cluster into a primary ticket, reversible until
// RevertDeadline.
type MergeOperation struct {
	ID string `json:"id"`
	PK string `json:"pk"`

	ClusterID          string        `json:"cluster_id"`
	PrimaryTicketID    string        `json:"primary_ticket_id"`
	SecondaryTicketIDs []string      `json:"secondary_ticket_ids"`
	MergeBehavior      MergeBehavior `json:"merge_behavior"`

	PerformedBy    string    `json:"performed_by"`
	PerformedAt    time.Time `json:"performed_at"`
	RevertDeadline time.Time `json:"revert_deadline"`

	Status MergeStatus `json:"status"`

	// Pre-merge snapshots keyed by secondary ticket id
	OriginalStates map[string]TicketSnapshot `json:"original_states"`

	RevertedBy   string     `json:"reverted_by,omitempty"`
	RevertedAt   *time.Time `json:"reverted_at,omitempty"`
	RevertReason string     `json:"revert_reason,omitempty"`

	ETag string `json:"_etag,omitempty"`
}
