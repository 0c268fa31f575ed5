package models

import "time"

// ClusterStatus represents the lifecycle state of a dedup cluster
type ClusterStatus string

const (
	ClusterStatusCandidate ClusterStatus = "candidate"
	ClusterStatusPending   ClusterStatus = "pending"
	ClusterStatusMerged    ClusterStatus = "merged"
	ClusterStatusDismissed ClusterStatus = "dismissed"
	ClusterStatusExpired   ClusterStatus = "expired"
)

// ClusterMember is a per-ticket summary snapshot recorded when the ticket
// joins the cluster.
type ClusterMember struct {
	TicketID        string    `json:"ticket_id"`
	TicketNumber    string    `json:"ticket_number"`
	Summary         string    `json:"summary"`
	Category        string    `json:"category"`
	Subcategory     string    `json:"subcategory,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ConfidenceScore float64   `json:"confidence_score"`
	AddedAt         time.Time `json:"added_at"`
}

// Cluster groups tickets the engine considers duplicates of each other.
// Invariants: TicketCount == len(Members); candidate status iff exactly one
// member; pending status iff 2..max members.
type Cluster struct {
	ID     string        `json:"id"`
	PK     string        `json:"pk"`
	Status ClusterStatus `json:"status"`

	// Inherited from the first member at creation
	CustomerID  string `json:"customer_id"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`

	RepresentativeTicketID string          `json:"representative_ticket_id"`
	Members                []ClusterMember `json:"members"`
	TicketCount            int             `json:"ticket_count"`
	OpenCount              int             `json:"open_count"`
	CentroidVector         []float32       `json:"centroid_vector,omitempty"`

	DismissedBy     string     `json:"dismissed_by,omitempty"`
	DismissalReason string     `json:"dismissal_reason,omitempty"`
	DismissedAt     *time.Time `json:"dismissed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ETag string `json:"_etag,omitempty"`
}

// MemberIndex returns the position of ticketID in Members, or -1.
func (c *Cluster) MemberIndex(ticketID string) int {
	for i, m := range c.Members {
		if m.TicketID == ticketID {
			return i
		}
	}
	return -1
}
