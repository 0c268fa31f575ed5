// Package repository provides the typed views (tickets, clusters, merges)
// over the partitioned document store.
package repository

import (
	"github.com/gotrs-io/dedup-ce/internal/docstore"
)

// Container names within the document store
const (
	ContainerTickets  = "tickets"
	ContainerClusters = "clusters"
	ContainerMerges   = "merges"
)

// TicketContainerOptions declares the ticket container schema: unique
// ticket numbers per partition and the content vector.
func TicketContainerOptions() docstore.ContainerOptions {
	return docstore.ContainerOptions{
		UniqueFields: []string{"ticket_number"},
		VectorField:  "content_vector",
		FilterFields: []string{"ticket_number", "customer_id", "status", "cluster_id", "updated_at"},
	}
}

// ClusterContainerOptions declares the cluster container schema: centroid
// vector plus the candidate-search filter fields.
func ClusterContainerOptions() docstore.ContainerOptions {
	return docstore.ContainerOptions{
		VectorField:  "centroid_vector",
		FilterFields: []string{"status", "customer_id", "ticket_count", "open_count", "updated_at"},
	}
}

// MergeContainerOptions declares the merge container schema.
func MergeContainerOptions() docstore.ContainerOptions {
	return docstore.ContainerOptions{
		FilterFields: []string{"cluster_id", "primary_ticket_id", "status"},
	}
}

// Stores bundles the three typed views over one document store.
type Stores struct {
	Tickets  *TicketStore
	Clusters *ClusterStore
	Merges   *MergeStore
}

// New wires typed stores over already-constructed containers.
func New(tickets, clusters, merges docstore.Container) *Stores {
	return &Stores{
		Tickets:  NewTicketStore(tickets),
		Clusters: NewClusterStore(clusters),
		Merges:   NewMergeStore(merges),
	}
}

// NewMemory builds a Stores bundle over fresh in-memory containers, used by
// tests and the memory store driver.
func NewMemory() *Stores {
	return New(
		docstore.NewMemoryContainer(TicketContainerOptions()),
		docstore.NewMemoryContainer(ClusterContainerOptions()),
		docstore.NewMemoryContainer(MergeContainerOptions()),
	)
}

// NewSQLite builds a Stores bundle over a SQLite document store.
func NewSQLite(store *docstore.SQLStore) *Stores {
	return New(
		store.Container(ContainerTickets, TicketContainerOptions()),
		store.Container(ContainerClusters, ClusterContainerOptions()),
		store.Container(ContainerMerges, MergeContainerOptions()),
	)
}
