package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that need to branch on outcome
// (and for the HTTP layer to pick a status code).
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindInvalidState     Kind = "invalid_state"
	KindDeadlineExceeded Kind = "deadline_exceeded"
	KindMergeConflict    Kind = "merge_conflict"
	KindUnavailable      Kind = "unavailable"
	KindStoreError       Kind = "store_error"
)

// Stable machine-readable error codes
const (
	CodeDuplicateTicketNumber = "duplicate_ticket_number"
	CodeEmbeddingUnavailable  = "embedding_unavailable"
	CodeAlreadyDismissed      = "already_dismissed"
	CodeNotMember             = "not_member"
	CodeInvalidClusterState   = "invalid_cluster_state"
	CodePrimaryNotInCluster   = "primary_not_in_cluster"
	CodeNothingToMerge        = "nothing_to_merge"
	CodeAlreadyReverted       = "already_reverted"
	CodeRevertWindowExpired   = "revert_window_expired"
	CodeMergeConflict         = "merge_conflict"
	CodeETagExhausted         = "etag_retries_exhausted"
)

// MergeConflicts is the payload of a merge_conflict failure: the merges and
// tickets that make a non-forced revert unsafe.
type MergeConflicts struct {
	SubsequentMergeIDs []string `json:"subsequent_merge_ids,omitempty"`
	ModifiedTicketIDs  []string `json:"modified_ticket_ids,omitempty"`
}

// Empty reports whether no conflicts were detected.
func (mc *MergeConflicts) Empty() bool {
	return mc == nil || (len(mc.SubsequentMergeIDs) == 0 && len(mc.ModifiedTicketIDs) == 0)
}

// Error is the tagged failure type bubbled out of the core services.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Conflicts *MergeConflicts
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a tagged error.
func E(kind Kind, code, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error, typically a store failure.
func Wrap(kind Kind, code string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err is (or wraps) a tagged error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// CodeOf returns the machine-readable code of a tagged error, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ConflictsOf returns the merge-conflict payload carried by err, if any.
func ConflictsOf(err error) *MergeConflicts {
	var e *Error
	if errors.As(err, &e) {
		return e.Conflicts
	}
	return nil
}
