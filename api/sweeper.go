/*
sweeper.go - Automated policy expiry sweeper

PURPOSE:
  Periodically runs the expiry sweep so active policies past their term
  flip to expired without anyone calling the admin endpoint.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass delegates to the service's expiry sweep; a policy that
    fails its terminal write is retried on the next pass
  - A no-op when the service has no policy term configured

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewExpirySweeper(service)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: ExpirePolicies endpoint (manual sweep)
  - escrow/service.go: ExpirePolicies
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/settlement-engine/escrow"
)

// ExpirySweeper runs the policy expiry sweep on a schedule.
type ExpirySweeper struct {
	Service       *escrow.Service
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpirySweeper creates a new sweeper.
func NewExpirySweeper(service *escrow.Service) *ExpirySweeper {
	return &ExpirySweeper{
		Service:       service,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (es *ExpirySweeper) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run()

	log.Printf("[Sweeper] Started with check interval: %v", es.CheckInterval)
}

// Stop stops the sweeper.
func (es *ExpirySweeper) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (es *ExpirySweeper) run() {
	defer es.wg.Done()

	// Run immediately on start
	es.sweep()

	for {
		select {
		case <-es.ticker.C:
			es.sweep()
		case <-es.stop:
			return
		}
	}
}

func (es *ExpirySweeper) sweep() {
	ctx := context.Background()

	expired, err := es.Service.ExpirePolicies(ctx, time.Time{})
	if err != nil {
		log.Printf("[Sweeper] Error running expiry sweep: %v", err)
		return
	}

	if len(expired) > 0 {
		log.Printf("[Sweeper] Expired %d policies", len(expired))
	}
}
