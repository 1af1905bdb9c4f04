package diskcache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio"
)

// Summary is the compact metadata record cached for paths whose full
// content isn't worth (or able to be) cached, e.g. when populating the
// summary cache from a batch archive walk (spec §4.4).
type Summary struct {
	Path string
	Size uint64
	MD5  [16]byte
	Type string
}

// Cache is an on-disk, content-addressed blob store plus index, backing
// the slow per-backend lookups of C6. The zero Cache is not usable; build
// one with Open.
type Cache struct {
	dir     string
	softCap int64 // bytes; 0 means unbounded

	mu      sync.Mutex
	entries map[string]*indexEntry // by Key.string()
	size    int64

	keyLocks sync.Map // Key.string() -> *sync.Mutex, single-writer-per-key (spec §4.4)
}

// Open loads (or initialises) a Cache rooted at dir, with softCap bytes as
// the soft size cap controlling LRU eviction (spec §4.4, §9 open question
// (a): size-bounded LRU, since the spec leaves the exact policy unpinned).
func Open(dir string, softCap int64) (*Cache, error) {
	if err := os.MkdirAll(filepath.Join(dir, "blobs"), 0o755); err != nil {
		return nil, err
	}
	c := &Cache{dir: dir, softCap: softCap, entries: make(map[string]*indexEntry)}

	b, err := os.ReadFile(filepath.Join(dir, "index.pb"))
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	entries, err := unmarshalIndex(b)
	if err != nil {
		// A corrupt index degrades to an empty cache rather than a fatal
		// error (spec §7: "Cache errors degrade to uncached operation").
		return c, nil
	}
	for _, e := range entries {
		c.entries[e.Key] = e
		c.size += int64(e.Size)
	}
	return c, nil
}

func (c *Cache) blobPath(digest []byte) string {
	h := hex.EncodeToString(digest)
	return filepath.Join(c.dir, "blobs", h[:2], h[2:])
}

// lockFor returns the single-writer mutex for key, creating it on first
// use. Readers are unblocked (spec §4.4): this lock only needs to be held
// by the goroutine populating a given key.
func (c *Cache) lockFor(key string) *sync.Mutex {
	v, _ := c.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// GetBytes returns the cached bytes for key, if present.
func (c *Cache) GetBytes(key Key) ([]byte, bool) {
	ks := key.string()
	c.mu.Lock()
	e, ok := c.entries[ks]
	c.mu.Unlock()
	if !ok || e.Kind != 0 {
		return nil, false
	}
	b, err := os.ReadFile(c.blobPath(e.Digest))
	if err != nil {
		return nil, false
	}
	c.touch(ks)
	return b, true
}

// GetSummary returns the cached summary record for key, if present.
func (c *Cache) GetSummary(key Key) (Summary, bool) {
	ks := key.string()
	c.mu.Lock()
	e, ok := c.entries[ks]
	c.mu.Unlock()
	if !ok || e.Kind != 1 {
		return Summary{}, false
	}
	c.touch(ks)
	var md5 [16]byte
	copy(md5[:], e.SummaryMD5)
	return Summary{Path: key.Path, Size: e.Size, MD5: md5, Type: e.SummaryType}, true
}

// PutBytes stores b as the cached content for key, single-writer-locked per
// key. A write failure returns the error and records no entry; the cache
// never stores negative (unavailable) entries.
func (c *Cache) PutBytes(key Key, b []byte) error {
	lock := c.lockFor(key.string())
	lock.Lock()
	defer lock.Unlock()

	sum := sha256.Sum256(b)
	path := c.blobPath(sum[:])
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, b, 0o644); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key.string()]; ok {
		c.size -= int64(old.Size)
	}
	e := &indexEntry{Key: key.string(), Kind: 0, Digest: sum[:], Size: uint64(len(b)), LastAccess: time.Now().UnixNano()}
	c.entries[key.string()] = e
	c.size += int64(len(b))
	c.evictLocked()
	return c.flushLocked()
}

// PutSummary stores a compact summary record for key.
func (c *Cache) PutSummary(key Key, s Summary) error {
	lock := c.lockFor(key.string())
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	e := &indexEntry{
		Key:         key.string(),
		Kind:        1,
		Size:        s.Size,
		SummaryMD5:  append([]byte(nil), s.MD5[:]...),
		SummaryType: s.Type,
	}
	c.entries[key.string()] = e
	return c.flushLocked()
}

func (c *Cache) touch(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.LastAccess = time.Now().UnixNano()
	}
}

// evictLocked drops least-recently-touched bytes-kind entries until total
// size is under softCap. Must be called with c.mu held.
func (c *Cache) evictLocked() {
	if c.softCap <= 0 || c.size <= c.softCap {
		return
	}
	var victims []*indexEntry
	for _, e := range c.entries {
		if e.Kind == 0 {
			victims = append(victims, e)
		}
	}
	sort.Slice(victims, func(i, j int) bool { return victims[i].LastAccess < victims[j].LastAccess })
	for _, e := range victims {
		if c.size <= c.softCap {
			break
		}
		os.Remove(c.blobPath(e.Digest))
		delete(c.entries, e.Key)
		c.size -= int64(e.Size)
	}
}

// flushLocked persists the index to disk. Must be called with c.mu held.
func (c *Cache) flushLocked() error {
	entries := make([]*indexEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	b := marshalIndex(entries)
	return renameio.WriteFile(filepath.Join(c.dir, "index.pb"), b, 0o644)
}

// Close flushes the index. Safe to call multiple times.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}
