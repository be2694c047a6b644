package cities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/renameio/v2"
	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/repeater-data-etl/internal/domain"
)

// ErrNotCached is returned by a Store that holds no copy of the index.
var ErrNotCached = errors.New("city index not cached")

// Store persists the folded name index between processes.
type Store interface {
	// Load returns the cached names and when they were saved.
	Load(ctx context.Context) ([]string, time.Time, error)
	Save(ctx context.Context, names []string) error
}

// FileStore keeps the index as a pretty-printed JSON array; the file's
// modification time is the cache timestamp.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) ([]string, time.Time, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, ErrNotCached
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat city cache: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read city cache: %w", err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode city cache %s: %w", s.path, err)
	}
	return names, info.ModTime(), nil
}

func (s *FileStore) Save(_ context.Context, names []string) error {
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return fmt.Errorf("encode city cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create city cache dir: %w", err)
	}

	pf, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("open city cache: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	if _, err := pf.Write(data); err != nil {
		return fmt.Errorf("write city cache: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit city cache: %w", err)
	}
	return nil
}

// RedisStore keeps the index in a Redis hash so several processes can share
// one copy.
type RedisStore struct {
	client *redis.Client
	key    string
}

const (
	fieldNames   = "names"
	fieldSavedAt = "saved_at"
)

// NewRedisStore stores the index under key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisStore) Load(ctx context.Context) ([]string, time.Time, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read city cache: %w", err)
	}
	raw, ok := vals[fieldNames]
	if !ok {
		return nil, time.Time{}, ErrNotCached
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode city cache %s: %w", s.key, err)
	}
	var savedAt time.Time
	if ts, err := strconv.ParseInt(vals[fieldSavedAt], 10, 64); err == nil {
		savedAt = time.Unix(ts, 0).UTC()
	}
	return names, savedAt, nil
}

func (s *RedisStore) Save(ctx context.Context, names []string) error {
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode city cache: %w", err)
	}
	err = s.client.HSet(ctx, s.key,
		fieldNames, string(data),
		fieldSavedAt, strconv.FormatInt(domain.Now().Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("write city cache: %w", err)
	}
	return nil
}

// CheckReadiness pings Redis.
func (s *RedisStore) CheckReadiness(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
