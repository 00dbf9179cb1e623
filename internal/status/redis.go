package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonathan/career-fit/internal/types"
)

// DefaultStatusTTL is how long a finished upload's status stays queryable in Redis.
const DefaultStatusTTL = 24 * time.Hour

const statusKeyPrefix = "fit:upload:"

// maxTxRetries bounds optimistic-lock retries when two writers race on one upload.
const maxTxRetries = 5

// RedisTracker stores statuses in Redis so several processes can poll the same uploads.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Tracker = (*RedisTracker)(nil)

// NewRedisTracker connects to the Redis server at url (redis://host:port/db).
func NewRedisTracker(ctx context.Context, url string, ttl time.Duration) (*RedisTracker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisTracker{client: client, ttl: ttl}, nil
}

// Close closes the Redis client.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}

func (t *RedisTracker) key(uploadID string) string {
	return statusKeyPrefix + uploadID
}

// Start registers a new upload.
func (t *RedisTracker) Start(ctx context.Context, uploadID, sessionID, kind string) error {
	data, err := json.Marshal(types.UploadStatus{
		UploadID:  uploadID,
		SessionID: sessionID,
		Kind:      kind,
		Stage:     types.StageUploading,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := t.client.Set(ctx, t.key(uploadID), data, t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store status of upload %s: %w", uploadID, err)
	}
	return nil
}

// Advance moves an upload forward.
func (t *RedisTracker) Advance(ctx context.Context, uploadID string, stage types.Stage, detail string) error {
	return t.transition(ctx, uploadID, stage, detail, "")
}

// Fail moves an upload to the error stage.
func (t *RedisTracker) Fail(ctx context.Context, uploadID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return t.transition(ctx, uploadID, types.StageError, "", msg)
}

// transition reads, checks and writes the status under WATCH so a concurrent
// writer cannot move the upload backwards.
func (t *RedisTracker) transition(ctx context.Context, uploadID string, stage types.Stage, detail, errMsg string) error {
	key := t.key(uploadID)
	txf := func(tx *redis.Tx) error {
		cur, err := t.read(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := apply(*cur, stage, detail, errMsg, time.Now().UTC())
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, t.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := t.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("status of upload %s changed concurrently %d times", uploadID, maxTxRetries)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Get returns the upload's status.
func (t *RedisTracker) Get(ctx context.Context, uploadID string) (*types.UploadStatus, error) {
	return t.read(ctx, t.client, t.key(uploadID))
}

func (t *RedisTracker) read(ctx context.Context, c getter, key string) (*types.UploadStatus, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	var st types.UploadStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("corrupt status at %s: %w", key, err)
	}
	return &st, nil
}
