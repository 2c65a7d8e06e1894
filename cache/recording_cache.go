package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"CallBox/model"

	"github.com/go-redis/redis/v8"
)

const (
	snapshotKey    = "callbox:%s:snapshot"     // String: JSON 录音列表
	refreshLockKey = "callbox:%s:refresh_lock" // String: 刷新节流锁
)

// RecordingCache shares the scanned recording list between CallBox
// processes that index the same storage root.
type RecordingCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRecordingCache 创建录音缓存，namespace 由存储根目录派生
func NewRecordingCache(storageRoot string, ttl time.Duration) *RecordingCache {
	return &RecordingCache{
		client:    RedisClient,
		namespace: Namespace(storageRoot),
		ttl:       ttl,
	}
}

// Namespace returns a short stable key fragment for a storage root.
func Namespace(storageRoot string) string {
	sum := sha1.Sum([]byte(storageRoot))
	return hex.EncodeToString(sum[:6])
}

func (c *RecordingCache) key(format string) string {
	return fmt.Sprintf(format, c.namespace)
}

// SaveSnapshot 保存最新快照
func (c *RecordingCache) SaveSnapshot(ctx context.Context, recs []*model.Recording) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := EncodeSnapshot(recs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(snapshotKey), data, c.ttl).Err()
}

// LoadSnapshot returns nil, nil when no snapshot is cached.
func (c *RecordingCache) LoadSnapshot(ctx context.Context) ([]*model.Recording, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	data, err := c.client.Get(ctx, c.key(snapshotKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return DecodeSnapshot(data)
}

// AcquireRefresh 用 SETNX 实现跨进程的刷新节流，true 表示本进程可以扫描
func (c *RecordingCache) AcquireRefresh(ctx context.Context, ttl time.Duration) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}
	return c.client.SetNX(ctx, c.key(refreshLockKey), time.Now().UnixMilli(), ttl).Result()
}

// Invalidate 删除快照和锁
func (c *RecordingCache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.Del(ctx, c.key(snapshotKey), c.key(refreshLockKey)).Err()
}

type snapshot struct {
	Version    int                `json:"v"`
	Recordings []*model.Recording `json:"recordings"`
}

const snapshotVersion = 1

// EncodeSnapshot serializes recs. A nil slice is stored as an empty list.
func EncodeSnapshot(recs []*model.Recording) ([]byte, error) {
	if recs == nil {
		recs = []*model.Recording{}
	}
	data, err := json.Marshal(snapshot{Version: snapshotVersion, Recordings: recs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses data written by EncodeSnapshot.
func DecodeSnapshot(data []byte) ([]*model.Recording, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	if s.Recordings == nil {
		s.Recordings = []*model.Recording{}
	}
	return s.Recordings, nil
}
