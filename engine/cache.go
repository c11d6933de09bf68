package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/kilnwasm/kiln/errors"
	"github.com/kilnwasm/kiln/wasm"
)

// Key addresses one compiled artifact in a cache. Keys are content
// derived: the same module bytes compiled under the same envelope
// always map to the same key.
type Key [sha256.Size]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Cache stores serialized artifacts. Implementations only need
// get/put semantics; eviction is their own business.
type Cache interface {
	// Get returns the cached bytes for key, with ok reporting whether
	// the entry exists. A missing entry is not an error.
	Get(key Key) (data []byte, ok bool, err error)
	// Put stores data under key, replacing any previous entry.
	Put(key Key, data []byte) error
	// Delete drops the entry for key. Deleting a missing entry is a
	// no-op.
	Delete(key Key) error
}

// ModuleKey derives the cache key for compiling wasmBytes on e. The
// engine's full compatibility envelope participates so an engine
// never sees another envelope's artifacts.
func ModuleKey(e Engine, wasmBytes []byte) Key {
	h := sha256.New()
	var hdr [11]byte
	hdr[0] = byte(e.ID())
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(e.Features()))
	binary.LittleEndian.PutUint16(hdr[5:7], uint16(len(e.Target().Triple())))
	h.Write(hdr[:7])
	h.Write([]byte(e.Target().Triple()))
	h.Write(wasmBytes)
	var k Key
	h.Sum(k[:0])
	return k
}

// MemoryCache is a process-local cache. Safe for concurrent use.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[Key][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[Key][]byte)}
}

func (c *MemoryCache) Get(key Key) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.m[key]
	return data, ok, nil
}

func (c *MemoryCache) Put(key Key, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	c.mu.Lock()
	c.m[key] = stored
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(key Key) error {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
	return nil
}

// FileCache keeps one file per artifact under a directory, named by
// the hex key. Writes go through a temp file and a rename so readers
// never observe a partial artifact.
type FileCache struct {
	dir string
}

// NewFileCache returns a cache rooted at dir, creating it if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindIO, err, "creating cache directory")
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(key Key) string {
	return filepath.Join(c.dir, key.String())
}

func (c *FileCache) Get(key Key) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(errors.PhaseCache, errors.KindIO, err, "reading cache entry")
	}
	return data, true, nil
}

func (c *FileCache) Put(key Key, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, "put-*")
	if err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindIO, err, "creating cache temp file")
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return errors.Wrap(errors.PhaseCache, errors.KindIO, err, "writing cache entry")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.PhaseCache, errors.KindIO, err, "closing cache temp file")
	}
	if err := os.Rename(name, c.path(key)); err != nil {
		os.Remove(name)
		return errors.Wrap(errors.PhaseCache, errors.KindIO, err, "publishing cache entry")
	}
	return nil
}

func (c *FileCache) Delete(key Key) error {
	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.PhaseCache, errors.KindIO, err, "removing cache entry")
	}
	return nil
}

// CachedEngine wraps a compiling engine with a cache on its compile
// entry point. Hits skip compilation entirely by deserializing the
// stored artifact; misses compile, then store best effort. A cache
// that fails never fails a compile.
type CachedEngine struct {
	Compiler
	cache Cache
}

// NewCachedEngine wraps inner with cache.
func NewCachedEngine(inner Compiler, cache Cache) *CachedEngine {
	return &CachedEngine{Compiler: inner, cache: cache}
}

// Compile returns a cached artifact when one exists for wasmBytes
// under this engine's envelope, compiling and caching otherwise.
func (e *CachedEngine) Compile(ctx context.Context, wasmBytes []byte) (*Artifact, error) {
	key := ModuleKey(e.Compiler, wasmBytes)
	if data, ok, err := e.cache.Get(key); err != nil {
		Logger().Warn("cache read failed", zap.String("key", key.String()), zap.Error(err))
	} else if ok {
		a, err := e.Deserialize(data)
		if err == nil {
			Logger().Debug("cache hit", zap.String("key", key.String()))
			return a, nil
		}
		// A stale or corrupt entry falls back to compiling and is
		// dropped so it is not hit again.
		Logger().Warn("cache entry unusable", zap.String("key", key.String()), zap.Error(err))
		_ = e.cache.Delete(key)
	}

	a, err := e.Compiler.Compile(ctx, wasmBytes)
	if err != nil {
		return nil, err
	}
	data, err := a.Serialize()
	if err != nil {
		Logger().Warn("artifact not cacheable", zap.String("key", key.String()), zap.Error(err))
		return a, nil
	}
	if err := e.cache.Put(key, data); err != nil {
		Logger().Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
	return a, nil
}

// CompileModule bypasses the cache: without the original bytes there
// is no stable key, so decoded modules always compile.
func (e *CachedEngine) CompileModule(ctx context.Context, m *wasm.Module) (*Artifact, error) {
	return e.Compiler.CompileModule(ctx, m)
}
