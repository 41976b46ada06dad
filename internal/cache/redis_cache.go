package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SAP-F-2025/session-runtime/internal/utils"
	"github.com/redis/go-redis/v9"
)

// ErrSnapshotMissing is returned when no snapshot exists for a session.
var ErrSnapshotMissing = errors.New("session snapshot not found")

// Snapshot is the hot copy of the periodically-synced session state. It is
// written on every sync before the durable row, and preferred over the row on
// load because it is at most one debounce window stale.
type Snapshot struct {
	CurrentQuestionIndex int             `json:"current_question_index"`
	TimeRemaining        int             `json:"time_remaining"`
	TotalPauseDuration   int             `json:"total_pause_duration"`
	Answers              map[uint][]uint `json:"answers"`
	Flags                []int           `json:"flags"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type SessionCache interface {
	SaveSnapshot(ctx context.Context, sessionID uint, snapshot *Snapshot) error
	GetSnapshot(ctx context.Context, sessionID uint) (*Snapshot, error)
	Delete(ctx context.Context, sessionID uint) error
}

type redisCache struct {
	client *redis.Client
	logger utils.Logger
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, logger utils.Logger) SessionCache {
	return &redisCache{
		client: client,
		logger: logger,
		// Outlives the longest allowed survey duration so an offline pause
		// never expires a resumable snapshot.
		ttl: 24 * time.Hour,
	}
}

func snapshotKey(sessionID uint) string {
	return fmt.Sprintf("session:%d:snapshot", sessionID)
}

func (r *redisCache) SaveSnapshot(ctx context.Context, sessionID uint, snapshot *Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey(sessionID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *redisCache) GetSnapshot(ctx context.Context, sessionID uint) (*Snapshot, error) {
	raw, err := r.client.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotMissing
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

func (r *redisCache) Delete(ctx context.Context, sessionID uint) error {
	return r.client.Del(ctx, snapshotKey(sessionID)).Err()
}
