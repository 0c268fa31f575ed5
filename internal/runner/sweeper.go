// Package runner hosts the background jobs of the service. The only job
// today is the cluster expiry sweep.
package runner

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gotrs-io/dedup-ce/internal/dedup"
	"github.com/gotrs-io/dedup-ce/internal/service"
)

// Sweeper periodically transitions candidate and pending clusters that sat
// idle past the dedup window to expired.
type Sweeper struct {
	clustering *service.ClusteringService
	months     int
	cron       *cron.Cron
}

// NewSweeper builds a sweeper covering the same partitions the candidate
// search reads.
func NewSweeper(clustering *service.ClusteringService, months int) *Sweeper {
	if months < 1 {
		months = 1
	}
	return &Sweeper{
		clustering: clustering,
		months:     months,
		cron:       cron.New(cron.WithSeconds()),
	}
}

// Start schedules the sweep. The schedule uses the six-field cron format.
func (s *Sweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			log.Printf("sweeper: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce sweeps every active partition once.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	total := 0
	for _, pk := range dedup.SearchPartitions(time.Now(), s.months) {
		n, err := s.clustering.ExpireStale(ctx, pk)
		if err != nil {
			return err
		}
		total += n
	}
	if total > 0 {
		log.Printf("sweeper: expired %d stale clusters", total)
	}
	return nil
}
