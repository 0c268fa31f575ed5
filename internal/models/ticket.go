package models

import (
	"strings"
	"time"
)

// TicketStatus represents the lifecycle state of a ticket
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
	TicketStatusMerged   TicketStatus = "merged"
)

// TicketPriority represents the priority level of a ticket
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// Ticket represents a support ticket. The public identity is TicketNumber,
// unique within a month partition; ID is the internal UUID.
type Ticket struct {
	ID           string `json:"id"`
	PK           string `json:"pk"`
	TicketNumber string `json:"ticket_number"`

	// Content fields (embedded for dedup)
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Channel     string `json:"channel"`
	Severity    string `json:"severity,omitempty"`
	Merchant    string `json:"merchant,omitempty"`

	// Customer fields (PII, never embedded)
	CustomerID   string `json:"customer_id"`
	Name         string `json:"name,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty"`
	Email        string `json:"email,omitempty"`
	AccountType  string `json:"account_type,omitempty"`

	// Transaction fields
	TransactionID string     `json:"transaction_id,omitempty"`
	Amount        float64    `json:"amount,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	OccurredAt    *time.Time `json:"occurred_at,omitempty"`

	Status   TicketStatus   `json:"status"`
	Priority TicketPriority `json:"priority"`

	// Derived at ingest
	DedupText     string         `json:"dedup_text,omitempty"`
	ContentVector []float32      `json:"content_vector,omitempty"`
	ClusterID     string         `json:"cluster_id,omitempty"`
	Dedup         *DedupDecision `json:"dedup,omitempty"`
	MergedIntoID  string         `json:"merged_into_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	ETag string `json:"_etag,omitempty"`
}

// TicketCreate is the inbound payload for creating a ticket. The yaml tags
// serve the seed fixtures.
type TicketCreate struct {
	TicketNumber string `json:"ticket_number" yaml:"ticket_number" binding:"required"`
	Summary      string `json:"summary" yaml:"summary" binding:"required,max=500"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	Category     string `json:"category" yaml:"category" binding:"required"`
	Subcategory  string `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Channel      string `json:"channel" yaml:"channel" binding:"required"`
	Severity     string `json:"severity,omitempty" yaml:"severity,omitempty"`
	Merchant     string `json:"merchant,omitempty" yaml:"merchant,omitempty"`

	CustomerID   string `json:"customer_id" yaml:"customer_id" binding:"required"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty" yaml:"mobile_number,omitempty"`
	Email        string `json:"email,omitempty" yaml:"email,omitempty"`
	AccountType  string `json:"account_type,omitempty" yaml:"account_type,omitempty"`

	TransactionID string     `json:"transaction_id,omitempty" yaml:"transaction_id,omitempty"`
	Amount        float64    `json:"amount,omitempty" yaml:"amount,omitempty"`
	Currency      string     `json:"currency,omitempty" yaml:"currency,omitempty"`
	OccurredAt    *time.Time `json:"occurred_at,omitempty" yaml:"occurred_at,omitempty"`

	Status   TicketStatus   `json:"status,omitempty" yaml:"status,omitempty"`
	Priority TicketPriority `json:"priority,omitempty" yaml:"priority,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// DedupText concatenates the non-PII content fields in fixed order with
// single-space separators. Customer identifiers must never appear here;
// the result is the exact string sent to the embedding provider.
func (tc *TicketCreate) DedupText() string {
	parts := make([]string, 0, 7)
	for _, f := range []string{
		tc.Summary,
		tc.Description,
		tc.Category,
		tc.Subcategory,
		tc.Merchant,
		tc.Channel,
		tc.Severity,
	} {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// MonthKey derives the partition key for a timestamp: YYYY-MM in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
