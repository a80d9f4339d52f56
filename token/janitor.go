/*
janitor.go - Background purge of expired tokens

PURPOSE:
  Periodically removes expired token rows from active storage. This is
  housekeeping only: expiry is enforced by timestamp comparison in
  Resolve, so a missed or delayed purge never affects correctness.

USAGE:
  janitor := token.NewJanitor(manager, 5*time.Minute)
  janitor.Start()
  // ... on shutdown
  janitor.Stop()
*/
package token

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/venuepass/pass-engine/metrics"
)

// DefaultPurgeInterval is how often the janitor sweeps.
const DefaultPurgeInterval = 5 * time.Minute

// Janitor runs Manager.PurgeExpired on a ticker.
type Janitor struct {
	Manager  *Manager
	Interval time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewJanitor(m *Manager, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	return &Janitor{
		Manager:  m,
		Interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the background sweep.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker != nil {
		return
	}
	j.ticker = time.NewTicker(j.Interval)
	j.wg.Add(1)
	go j.run()

	log.Printf("[Janitor] Started with purge interval: %v", j.Interval)
}

// Stop stops the sweep and waits for an in-flight purge to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ticker != nil {
		j.ticker.Stop()
		close(j.stop)
		j.wg.Wait()
		j.ticker = nil
		log.Println("[Janitor] Stopped")
	}
}

func (j *Janitor) run() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ticker.C:
			j.sweep()
		case <-j.stop:
			return
		}
	}
}

func (j *Janitor) sweep() {
	n, err := j.Manager.PurgeExpired(context.Background())
	if err != nil {
		log.Printf("[Janitor] Purge failed: %v", err)
		return
	}
	if n > 0 {
		metrics.TokensPurged.Add(float64(n))
		log.Printf("[Janitor] Purged %d expired tokens", n)
	}
}
