package quota

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultSweepInterval = time.Minute

// Sweeper periodically releases reservations whose expiration has
// passed, so abandoned in-flight operations return their capacity.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper builds a sweeper over the engine. A non-positive interval
// selects the default.
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if engine == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{engine: engine, interval: interval}
}

// Start launches the sweep loop in a goroutine. It stops when ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("reservation sweeper started (interval=%s)", s.interval)
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.sweep(ctx)
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, errExpire := s.engine.ExpireReservations(ctx)
	if errExpire != nil {
		log.WithError(errExpire).Warn("reservation sweep failed")
		return
	}
	if expired > 0 {
		log.Infof("reservation sweep released %d expired reservations", expired)
	}
}
