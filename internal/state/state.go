package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orangecatalog/pipeline/internal/domain"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ErrLocked is returned when another run already holds the output root.
var ErrLocked = errors.New("another pipeline run holds the lock")

// StateManager serializes runs over one output root and remembers the last completed run.
type StateManager interface {
	AcquireLock(ctx context.Context, owner string) (release func(), err error)
	SaveLastRun(ctx context.Context, report *domain.RunReport) error
	LastRun(ctx context.Context) (*domain.RunReport, error)
}

type redisStateManager struct {
	redisClient *redis.Client
	keyPrefix   string
	lockTTL     time.Duration
}

func NewRedisStateManager(redisClient *redis.Client, lockTTL time.Duration) StateManager {
	return &redisStateManager{
		redisClient: redisClient,
		keyPrefix:   "catalog:",
		lockTTL:     lockTTL,
	}
}

// releaseScript deletes the lock only while it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (s *redisStateManager) AcquireLock(ctx context.Context, owner string) (func(), error) {
	key := s.keyPrefix + "lock:pipeline"
	ok, err := s.redisClient.SetNX(ctx, key, owner, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire pipeline lock: %w", err)
	}
	if !ok {
		holder, _ := s.redisClient.Get(ctx, key).Result()
		return nil, fmt.Errorf("%w: held by %s", ErrLocked, holder)
	}

	return func() {
		// The run context may already be cancelled by the time we release
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, s.redisClient, []string{key}, owner).Err(); err != nil {
			log.Warnf("⚠️ Failed to release pipeline lock: %v", err)
		}
	}, nil
}

func (s *redisStateManager) SaveLastRun(ctx context.Context, report *domain.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}
	if err := s.redisClient.Set(ctx, s.keyPrefix+"state:last_run", data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save last run: %w", err)
	}
	return nil
}

func (s *redisStateManager) LastRun(ctx context.Context) (*domain.RunReport, error) {
	data, err := s.redisClient.Get(ctx, s.keyPrefix+"state:last_run").Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // No run recorded yet
		}
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	var report domain.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode last run: %w", err)
	}
	return &report, nil
}
