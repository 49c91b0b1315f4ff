package storage

import (
	"errors"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// This allows the ledger to use any database backend (in-memory or persistent).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// NewBatch returns a write set that is applied atomically by Write.
	NewBatch() Batch
	Close() // A way to gracefully shut down the database connection.
}

// Batch buffers writes until Write is called.
type Batch interface {
	Put(key []byte, value []byte)
	Delete(key []byte)
	Len() int
	Write() error
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) NewBatch() Batch { return &memBatch{db: db} }

// Len reports the number of stored keys.
func (db *MemDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.data)
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

type memOp struct {
	key    string
	value  []byte
	delete bool
}

type memBatch struct {
	db  *MemDB
	ops []memOp
}

func (b *memBatch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), value: append([]byte(nil), value...)})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), delete: true})
}

func (b *memBatch) Len() int { return len(b.ops) }

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, op.key)
			continue
		}
		b.db.data[op.key] = op.value
	}
	b.ops = nil
	return nil
}

// --- Persistent DB (for mainnet) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LevelDB) NewBatch() Batch {
	return &levelBatch{db: ldb.db, batch: new(leveldb.Batch)}
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key []byte, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)            { b.batch.Delete(key) }
func (b *levelBatch) Len() int                     { return b.batch.Len() }

func (b *levelBatch) Write() error {
	if err := b.db.Write(b.batch, nil); err != nil {
		return err
	}
	b.batch.Reset()
	return nil
}

// --- Buffered overlay ---

// CacheDB buffers writes on top of a parent Database. Reads see the buffered
// writes first. Nothing reaches the parent until Write is called, at which
// point every buffered change is applied as one batch.
type CacheDB struct {
	mu     sync.RWMutex
	parent Database
	dirty  map[string]*[]byte
}

func NewCacheDB(parent Database) *CacheDB {
	return &CacheDB{parent: parent, dirty: make(map[string]*[]byte)}
}

func (c *CacheDB) Put(key []byte, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := append([]byte(nil), value...)
	c.dirty[string(key)] = &copied
	return nil
}

func (c *CacheDB) Get(key []byte) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.dirty[string(key)]
	c.mu.RUnlock()
	if ok {
		if entry == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), (*entry)...), nil
	}
	return c.parent.Get(key)
}

func (c *CacheDB) Delete(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[string(key)] = nil
	return nil
}

// NewBatch returns a batch that lands in the overlay, not the parent.
func (c *CacheDB) NewBatch() Batch { return &memCacheBatch{cache: c} }

// Dirty reports the number of buffered keys.
func (c *CacheDB) Dirty() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dirty)
}

// Write flushes the buffered changes to the parent atomically and clears the
// overlay. Keys are written in sorted order so batches are deterministic.
func (c *CacheDB) Write() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.dirty) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.dirty))
	for key := range c.dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := c.parent.NewBatch()
	for _, key := range keys {
		if entry := c.dirty[key]; entry != nil {
			batch.Put([]byte(key), *entry)
		} else {
			batch.Delete([]byte(key))
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	c.dirty = make(map[string]*[]byte)
	return nil
}

// Discard drops every buffered change.
func (c *CacheDB) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = make(map[string]*[]byte)
}

// Close is a no-op; the parent owns the underlying connection.
func (c *CacheDB) Close() {}

type memCacheBatch struct {
	cache *CacheDB
	ops   []memOp
}

func (b *memCacheBatch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), value: append([]byte(nil), value...)})
}

func (b *memCacheBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), delete: true})
}

func (b *memCacheBatch) Len() int { return len(b.ops) }

func (b *memCacheBatch) Write() error {
	for _, op := range b.ops {
		if op.delete {
			_ = b.cache.Delete([]byte(op.key))
			continue
		}
		_ = b.cache.Put([]byte(op.key), op.value)
	}
	b.ops = nil
	return nil
}
