package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/tradedesk/internal/metrics"
)

// Key is the fixed persistence key of the favorite set
const Key = "favoriteSymbols"

// Backend persists the favorite set. Load reports found=false when nothing
// has ever been saved.
type Backend interface {
	Load(ctx context.Context) (symbols []string, found bool, err error)
	Save(ctx context.Context, symbols []string) error
	Name() string
}

// MemoryBackend keeps the set in process memory
type MemoryBackend struct {
	mu      sync.Mutex
	symbols []string
	saved   bool
	saves   int
}

// NewMemoryBackend creates an empty memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// NewMemoryBackendWith creates a memory backend holding symbols
func NewMemoryBackendWith(symbols ...string) *MemoryBackend {
	return &MemoryBackend{symbols: append([]string(nil), symbols...), saved: true}
}

// Load implements Backend
func (m *MemoryBackend) Load(context.Context) ([]string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.symbols...), m.saved, nil
}

// Save implements Backend
func (m *MemoryBackend) Save(_ context.Context, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols = append([]string(nil), symbols...)
	m.saved = true
	m.saves++
	return nil
}

// Saves is the number of writes so far
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Name implements Backend
func (m *MemoryBackend) Name() string {
	return "memory"
}

// fileDocument is the on-disk YAML layout
type fileDocument struct {
	FavoriteSymbols []string `yaml:"favoriteSymbols"`
}

// FileBackend stores the set as a YAML document
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend writing to path
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load implements Backend
func (f *FileBackend) Load(context.Context) ([]string, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read favorites file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to parse favorites file: %w", err)
	}
	return doc.FavoriteSymbols, true, nil
}

// Save implements Backend. The file is replaced atomically.
func (f *FileBackend) Save(_ context.Context, symbols []string) error {
	data, err := yaml.Marshal(fileDocument{FavoriteSymbols: symbols})
	if err != nil {
		return fmt.Errorf("failed to marshal favorites: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create favorites directory: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write favorites file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace favorites file: %w", err)
	}
	return nil
}

// Name implements Backend
func (f *FileBackend) Name() string {
	return "file"
}

// RedisBackend stores the set as a JSON list under Key
type RedisBackend struct {
	redis *metrics.RedisMetrics
}

// NewRedisBackend creates a backend on client
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{redis: metrics.NewRedisMetrics(client)}
}

// Load implements Backend
func (r *RedisBackend) Load(ctx context.Context) ([]string, bool, error) {
	raw, err := r.redis.Get(ctx, Key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load favorites: %w", err)
	}

	var symbols []string
	if err := json.Unmarshal([]byte(raw), &symbols); err != nil {
		return nil, false, fmt.Errorf("failed to parse favorites: %w", err)
	}
	return symbols, true, nil
}

// Save implements Backend
func (r *RedisBackend) Save(ctx context.Context, symbols []string) error {
	data, err := json.Marshal(symbols)
	if err != nil {
		return fmt.Errorf("failed to marshal favorites: %w", err)
	}
	if err := r.redis.Set(ctx, Key, data, 0); err != nil {
		return fmt.Errorf("failed to save favorites: %w", err)
	}
	return nil
}

// Name implements Backend
func (r *RedisBackend) Name() string {
	return "redis"
}
