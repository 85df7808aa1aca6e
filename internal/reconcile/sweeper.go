package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LockKey is the redis key guarding the sweep across replicas.
const LockKey = "telecare:reconcile:sweep"

// releaseScript deletes the lock only if this instance still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Sweeper periodically reconciles all doctors. With a redis client only one
// replica sweeps per interval.
type Sweeper struct {
	reconciler *Reconciler
	redis      *redis.Client
	interval   time.Duration
	lockTTL    time.Duration
	owner      string
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper creates a sweeper. rdb may be nil for single-instance setups.
func NewSweeper(reconciler *Reconciler, rdb *redis.Client, interval, lockTTL time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Sweeper{
		reconciler: reconciler,
		redis:      rdb,
		interval:   interval,
		lockTTL:    lockTTL,
		owner:      uuid.NewString(),
		logger:     logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start runs the sweep loop until ctx is done or Stop is called. It blocks.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	defer close(doneCh)

	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped by context")
			return
		case <-stopCh:
			s.logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop ends the loop and waits for the current sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
}

// RunOnce performs a single sweep if the lock can be taken. It reports
// whether the sweep ran.
func (s *Sweeper) RunOnce(ctx context.Context) bool {
	acquired, err := s.acquire(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sweep lock unavailable, skipping")
		return false
	}
	if !acquired {
		s.logger.Debug().Msg("another instance holds the sweep lock")
		return false
	}
	defer s.release()

	sweepCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	n, err := s.reconciler.ReconcileAll(sweepCtx)
	if err != nil {
		s.logger.Error().Err(err).Int("refunded", n).Msg("sweep finished with errors")
		return true
	}
	if n > 0 {
		s.logger.Info().Int("refunded", n).Msg("sweep finished")
	}
	return true
}

func (s *Sweeper) acquire(ctx context.Context) (bool, error) {
	if s.redis == nil {
		return true, nil
	}
	return s.redis.SetNX(ctx, LockKey, s.owner, s.lockTTL).Result()
}

func (s *Sweeper) release() {
	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, s.redis, []string{LockKey}, s.owner).Err(); err != nil && err != redis.Nil {
		s.logger.Warn().Err(err).Msg("release sweep lock")
	}
}
