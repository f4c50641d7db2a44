package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valter-silva-au/meridian/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrTranscriptNotFound is returned by Get for an unknown run id.
var ErrTranscriptNotFound = errors.New("transcript not found")

// TranscriptStore archives finished runs.
type TranscriptStore interface {
	Archive(ctx context.Context, t models.Transcript) error
	Get(ctx context.Context, runID string) (*models.Transcript, error)
	// List returns archived runs, newest first. A limit of zero means all.
	List(ctx context.Context, limit int) ([]models.Transcript, error)
	Close() error
}

// NewTranscriptStore builds the store selected by cfg. Relative file
// directories are resolved against basePath.
func NewTranscriptStore(cfg models.TranscriptConfig, basePath string) (TranscriptStore, error) {
	switch cfg.Backend {
	case "", "file":
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(".meridian", "transcripts")
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(basePath, dir)
		}
		return NewFileTranscriptStore(dir), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing transcripts.redis_url: %w", err)
		}
		return NewRedisTranscriptStore(redis.NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("unknown transcript backend %q", cfg.Backend)
	}
}

type fileTranscriptStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileTranscriptStore creates a TranscriptStore that writes one YAML file
// per run under dir.
func NewFileTranscriptStore(dir string) TranscriptStore {
	return &fileTranscriptStore{dir: dir}
}

func (s *fileTranscriptStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".yaml")
}

func (s *fileTranscriptStore) Archive(_ context.Context, t models.Transcript) error {
	if t.RunID == "" {
		return fmt.Errorf("archiving transcript: run id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("archiving transcript: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&t)
	if err != nil {
		return fmt.Errorf("archiving transcript %s: %w", t.RunID, err)
	}
	if err := os.WriteFile(s.path(t.RunID), data, 0o600); err != nil {
		return fmt.Errorf("archiving transcript %s: %w", t.RunID, err)
	}
	return nil
}

func (s *fileTranscriptStore) Get(_ context.Context, runID string) (*models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(s.path(runID), runID)
}

func (s *fileTranscriptStore) read(path, runID string) (*models.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("transcript %s: %w", runID, ErrTranscriptNotFound)
		}
		return nil, fmt.Errorf("reading transcript %s: %w", runID, err)
	}
	var t models.Transcript
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing transcript %s: %w", runID, err)
	}
	return &t, nil
}

func (s *fileTranscriptStore) List(_ context.Context, limit int) ([]models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}

	var out []models.Transcript
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		runID := strings.TrimSuffix(e.Name(), ".yaml")
		t, err := s.read(filepath.Join(s.dir, e.Name()), runID)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ArchivedAt.After(out[j].ArchivedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fileTranscriptStore) Close() error { return nil }

const (
	transcriptTTL    = 7 * 24 * time.Hour
	maxTranscripts   = 100
	transcriptPrefix = "meridian:transcript:"
	transcriptIndex  = "meridian:transcripts"
)

type redisTranscriptStore struct {
	rdb *redis.Client
}

// NewRedisTranscriptStore creates a TranscriptStore in redis. Each run is a
// JSON value with a TTL; an index list keeps the most recent runs.
func NewRedisTranscriptStore(rdb *redis.Client) TranscriptStore {
	return &redisTranscriptStore{rdb: rdb}
}

func (s *redisTranscriptStore) Archive(ctx context.Context, t models.Transcript) error {
	if t.RunID == "" {
		return fmt.Errorf("archiving transcript: run id must not be empty")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling transcript %s: %w", t.RunID, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, transcriptPrefix+t.RunID, data, transcriptTTL)
	// Re-archiving a run moves it to the front instead of listing it twice.
	pipe.LRem(ctx, transcriptIndex, 0, t.RunID)
	pipe.LPush(ctx, transcriptIndex, t.RunID)
	pipe.LTrim(ctx, transcriptIndex, 0, maxTranscripts-1)
	pipe.Expire(ctx, transcriptIndex, transcriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("archiving transcript %s: %w", t.RunID, err)
	}
	return nil
}

func (s *redisTranscriptStore) Get(ctx context.Context, runID string) (*models.Transcript, error) {
	data, err := s.rdb.Get(ctx, transcriptPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("transcript %s: %w", runID, ErrTranscriptNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading transcript %s: %w", runID, err)
	}
	var t models.Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshaling transcript %s: %w", runID, err)
	}
	return &t, nil
}

func (s *redisTranscriptStore) List(ctx context.Context, limit int) ([]models.Transcript, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.rdb.LRange(ctx, transcriptIndex, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	var out []models.Transcript
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, ErrTranscriptNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *redisTranscriptStore) Close() error {
	return s.rdb.Close()
}
