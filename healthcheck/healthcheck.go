// Package healthcheck is a purely diagnostic watchdog over the node
// registry: it periodically logs any session that has gone quiet for too
// long. Since there is no address reclamation, it never restarts, closes,
// or otherwise touches a session or connection.
package healthcheck

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"canbridge/registry"
)

const (
	interval       = 60 * time.Second
	staleThreshold = 90 * time.Second
)

// Run periodically inspects every registered session for staleness until
// ctx is cancelled.
func Run(ctx context.Context, reg *registry.Registry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check(reg)
		}
	}
}

func check(reg *registry.Registry) {
	for _, sess := range reg.Snapshot() {
		idle := time.Since(sess.LastActivity())
		if idle > staleThreshold {
			log.Warnf("healthcheck: node %d (%s) quiet for %v (threshold %v)",
				sess.Addr(), sess.Identity(), idle.Round(time.Second), staleThreshold)
			continue
		}
		log.Debugf("healthcheck: node %d ok (last packet %v ago)", sess.Addr(), idle.Round(time.Second))
	}
}
