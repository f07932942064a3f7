package progression

import (
	"context"
	"log"
	"time"
)

// Sweep evaluates the day-boundary rules for every active save and returns
// how many changed. A failing player is logged and skipped.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.ActivePlayers(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		_, ticked, err := s.tickIfDue(ctx, id)
		if err != nil {
			log.Printf("sweep %s: %v", id, err)
			continue
		}
		if ticked {
			changed++
		}
	}
	return changed, nil
}

// RunSweeper sweeps on every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("sweep error: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sweep updated %d saves", n)
			}
		}
	}
}
