// Package s4 is the public entry point for the embedded media-metadata
// database: a minimal facade over internal/* that type-aliases the
// pieces a library consumer needs and exposes Open/Begin as the only two
// constructors, the way the teacher's root beads.go aliases
// internal/types for external callers while keeping the real logic
// private.
//
// Grounded on original_source/src/lib/s4.c's s4_open/s4_close/s4_sync for
// the open/recovery/close lifecycle (read snapshot, open WAL in redo
// mode, background sync) and on the teacher's beads.go for the
// alias-and-wrap shape.
package s4

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/relatedb/s4/internal/config"
	"github.com/relatedb/s4/internal/lockfile"
	"github.com/relatedb/s4/internal/lockmgr"
	"github.com/relatedb/s4/internal/oplist"
	"github.com/relatedb/s4/internal/pattern"
	"github.com/relatedb/s4/internal/query"
	"github.com/relatedb/s4/internal/resultset"
	"github.com/relatedb/s4/internal/s4err"
	"github.com/relatedb/s4/internal/sourcepref"
	"github.com/relatedb/s4/internal/store"
	"github.com/relatedb/s4/internal/txn"
	"github.com/relatedb/s4/internal/value"
	"github.com/relatedb/s4/internal/walog"
)

// Core aliases for library consumers (spec.md §6).
type (
	Value       = value.Value
	CmpMode     = value.CmpMode
	InternedStr = value.InternedStr
	Pool        = value.Pool

	Pattern = pattern.Pattern

	SourcePref = sourcepref.SourcePref

	Condition = query.Condition
	Filter    = query.Filter
	Combiner  = query.Combiner
	FetchSpec = query.FetchSpec
	FetchItem = query.FetchItem

	ResultSet   = resultset.Set
	ResultRow   = resultset.Row
	ResultOrder = resultset.Order

	Error     = s4err.Error
	ErrorKind = s4err.Kind
)

// Value constructors.
var (
	Int = value.Int
	Str = value.Str
)

// Comparison modes (spec.md §4.1).
const (
	Binary   = value.Binary
	Caseless = value.Caseless
	Collate  = value.Collate
)

// Error kinds (spec.md §7).
const (
	ErrExists       = s4err.ErrExists
	ErrNoEnt        = s4err.ErrNoEnt
	ErrOpen         = s4err.ErrOpen
	ErrMagic        = s4err.ErrMagic
	ErrVersion      = s4err.ErrVersion
	ErrInconsistent = s4err.ErrInconsistent
	ErrLogOpen      = s4err.ErrLogOpen
	ErrLogRedo      = s4err.ErrLogRedo
	ErrLogFull      = s4err.ErrLogFull
	ErrReadOnly     = s4err.ErrReadOnly
	ErrExecute      = s4err.ErrExecute
	ErrDeadlock     = s4err.ErrDeadlock
)

// OpenFlags controls Open's behavior (spec.md §6).
type OpenFlags int

const (
	// New fails if the database file already exists.
	New OpenFlags = 1 << iota
	// ExistsOnly fails if the database file does not already exist.
	ExistsOnly
	// Memory opens a transient, file-backed-nothing database: no
	// snapshot is read on open, no WAL is written, Sync is a no-op.
	Memory
)

// Config is the resolved set of engine tuning knobs (internal/config's WAL
// capacity, checkpoint high-water mark, and background sync-thread
// interval), loaded by cmd/s4 from a TOML file and threaded through Open
// via its trailing variadic parameter.
type Config = config.Config

// TxnFlags controls Begin's behavior (spec.md §4.4).
type TxnFlags = txn.Flags

// ReadOnly transactions never log ops or touch the WAL.
const ReadOnly = txn.ReadOnly

// Handle is an open database: the in-memory store, its lock manager, the
// interning pool every key/source/int constant for this database is
// drawn from, and (unless opened Memory) a write-ahead log and a
// process-exclusion file lock.
type Handle struct {
	pool   *Pool
	store  *store.Store
	locks  *lockmgr.Manager
	engine *txn.Engine

	filename string
	log      *walog.Log
	file     *lockfile.File
	memory   bool

	stopSync chan struct{}
	syncDone chan struct{}

	errno error
}

// Open opens (or creates) the database at filename, declaring a b-index
// for each key in bIndices (spec.md §3: "b-indices exist only for keys
// the database was opened to index"). Recovery-on-open reads any existing
// checkpoint snapshot, then replays the write-ahead log from the
// last_checkpoint recorded in the log file's own header; the snapshot's
// recorded last_checkpoint is not consulted. An optional Config supplies
// the WAL's ring-buffer capacity and the cadence of a background
// checkpoint thread; Open falls back to walog.DefaultCapacity and runs no
// background thread when none is given.
func Open(filename string, bIndices []string, flags OpenFlags, cfg ...*Config) (*Handle, error) {
	s := store.New()
	pool := value.NewPool()
	for _, k := range bIndices {
		s.DeclareBIndex(pool.InternStr(k))
	}

	var c *Config
	if len(cfg) > 0 {
		c = cfg[0]
	}

	h := &Handle{
		pool:     pool,
		store:    s,
		locks:    lockmgr.New(),
		filename: filename,
		memory:   flags&Memory != 0,
	}
	h.engine = txn.NewEngine(s, h.locks)

	if h.memory {
		return h, nil
	}

	_, statErr := os.Stat(filename)
	exists := statErr == nil
	if flags&New != 0 && exists {
		return nil, s4err.New(s4err.ErrExists)
	}
	if flags&ExistsOnly != 0 && !exists {
		return nil, s4err.New(s4err.ErrNoEnt)
	}

	if exists {
		snap, err := walog.ReadSnapshot(filename)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if snap != nil {
			applySnapshot(s, pool, snap)
		}
	}

	lf, err := lockfile.Open(filename + ".lock")
	if err != nil {
		return nil, s4err.Wrap(s4err.ErrOpen, err)
	}
	h.file = lf
	h.engine.File = lf

	capacity := walog.DefaultCapacity
	if c != nil && c.LogCapacity > 0 {
		capacity = c.LogCapacity
	}
	log, err := walog.Open(filename+".log", capacity, pool, func(op oplist.Op) error {
		return applyOp(s, op)
	})
	if err != nil {
		lf.Close()
		return nil, err
	}
	h.log = log
	h.engine.Log = log

	if c != nil && c.SyncInterval > 0 {
		h.startPeriodicSync(c.SyncInterval, c.CheckpointHighWater)
	}

	return h, nil
}

// startPeriodicSync runs a ticker-driven background checkpoint loop,
// grounded on the teacher's daemon event loop (ticker plus a doSync
// callback): each tick checkpoints if either the interval has elapsed or
// the log has grown past highWater bytes since the last checkpoint, so a
// burst of writes doesn't have to wait out the full interval before it's
// made durable. Stopped by Close.
func (h *Handle) startPeriodicSync(interval time.Duration, highWater int64) {
	checkEvery := interval
	if highWater > 0 && checkEvery > time.Second {
		checkEvery = time.Second
	}
	h.stopSync = make(chan struct{})
	h.syncDone = make(chan struct{})
	go func() {
		defer close(h.syncDone)
		ticker := time.NewTicker(checkEvery)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-h.stopSync:
				return
			case now := <-ticker.C:
				due := now.Sub(last) >= interval
				over := highWater > 0 && h.log.UnsyncedBytes() > highWater
				if due || over {
					_ = h.Sync()
					last = now
				}
			}
		}
	}()
}

// applySnapshot replays every decoded checkpoint record into a freshly
// opened store, the same add path a transaction would use, but without
// locking or op-list bookkeeping since no concurrent reader can see the
// store until Open returns.
func applySnapshot(s *store.Store, pool *Pool, snap *walog.Snapshot) {
	for _, r := range snap.Records {
		keyA := pool.InternStr(r.KeyA)
		keyB := pool.InternStr(r.KeyB)
		src := pool.InternStr(r.Src)
		aIdx := s.AIndexFor(keyA)
		entry, _ := aIdx.GetOrCreate(keyA, r.ValA)
		entry.Insert(store.AttrTuple{KeyB: keyB, ValB: r.ValB, Src: src})
		if bIdx, ok := s.BIndexFor(keyB); ok {
			bIdx.Insert(r.ValB, entry)
		}
	}
}

// applyOp replays one redone WAL record into the store, mirroring
// applySnapshot's direct-to-store path.
func applyOp(s *store.Store, op oplist.Op) error {
	aIdx := s.AIndexFor(op.KeyA)
	entry, _ := aIdx.GetOrCreate(op.KeyA, op.ValA)
	tuple := store.AttrTuple{KeyB: op.KeyB, ValB: op.ValB, Src: op.Src}
	switch op.Kind {
	case oplist.Add:
		entry.Insert(tuple)
		if bIdx, ok := s.BIndexFor(op.KeyB); ok {
			bIdx.Insert(op.ValB, entry)
		}
	case oplist.Del:
		entry.Delete(tuple)
	}
	return nil
}

// Close flushes a final checkpoint (unless opened Memory) and releases
// the WAL and file lock.
func (h *Handle) Close() error {
	if h.stopSync != nil {
		close(h.stopSync)
		<-h.syncDone
	}
	if h.memory {
		return nil
	}
	if err := h.Sync(); err != nil {
		return err
	}
	if h.log != nil {
		if err := h.log.Close(); err != nil {
			return err
		}
	}
	if h.file != nil {
		return h.file.Close()
	}
	return nil
}

// Sync forces a checkpoint: a fresh snapshot of the whole store, fsynced
// to disk, advancing the WAL's durability watermark (spec.md §4.5
// "Checkpoint"). It takes the file-level lock exclusively for the
// duration of the snapshot walk, which must wait for every open
// transaction's shared hold (taken in Begin, released at commit/abort) to
// drain first — spec.md §4.4's "a single file-level read lock is held by
// the transaction to exclude checkpoint" — so a transaction that later
// aborts can never have its uncommitted store mutation captured into the
// durable snapshot.
func (h *Handle) Sync() error {
	if h.memory {
		return nil
	}
	if h.file != nil {
		if err := h.file.LockExclusive(); err != nil {
			h.errno = s4err.Wrap(s4err.ErrOpen, err)
			return h.errno
		}
		defer h.file.Unlock()
	}
	if h.log != nil {
		if err := h.log.Checkpoint(context.Background()); err != nil {
			h.errno = err
			return err
		}
	}
	var watermark int64
	if h.log != nil {
		watermark = h.log.LastCheckpoint()
	}
	if err := walog.WriteSnapshot(h.filename, h.store, watermark); err != nil {
		h.errno = err
		return err
	}
	h.errno = nil
	slog.Default().Info("s4: checkpoint completed", "file", h.filename, "watermark", watermark)
	return nil
}

// Errno returns the last error recorded against this handle outside a
// transaction (spec.md §7's s4_errno counterpart). It is cleared by a
// successful Sync.
func (h *Handle) Errno() error {
	return h.errno
}

// Pool returns the handle's interning authority: every key, source, and
// int-valued constant passed to a Txn must come from here.
func (h *Handle) Pool() *Pool { return h.pool }

// Txn is a single transaction against a Handle (spec.md §4.4).
type Txn struct {
	t     *txn.Txn
	pool  *Pool
	store *store.Store
	ctx   context.Context
}

// Begin starts a new transaction against h.
func Begin(h *Handle, flags TxnFlags) *Txn {
	t, _ := h.engine.Begin(flags)
	return &Txn{t: t, pool: h.pool, store: h.store, ctx: context.Background()}
}

// Add interns keyA/valA/keyB/valB/src as strings and inserts the tuple,
// returning whether the store actually changed (spec.md §6).
func (t *Txn) Add(keyA, valA, keyB, valB, src string) bool {
	va := value.Str(valA)
	vb := value.Str(valB)
	changed, _ := t.t.Add(t.ctx,
		t.pool.InternStr(keyA), &va,
		t.pool.InternStr(keyB), &vb,
		t.pool.InternStr(src))
	return changed
}

// AddInt is Add's int-valued overload for val_a/val_b (spec.md §4.1).
func (t *Txn) AddInt(keyA string, valA int32, keyB string, valB int32, src string) bool {
	va := value.Int(valA)
	vb := value.Int(valB)
	changed, _ := t.t.Add(t.ctx,
		t.pool.InternStr(keyA), &va,
		t.pool.InternStr(keyB), &vb,
		t.pool.InternStr(src))
	return changed
}

// Del removes the tuple, returning whether it was actually present.
func (t *Txn) Del(keyA, valA, keyB, valB, src string) bool {
	va := value.Str(valA)
	vb := value.Str(valB)
	changed, _ := t.t.Del(t.ctx,
		t.pool.InternStr(keyA), &va,
		t.pool.InternStr(keyB), &vb,
		t.pool.InternStr(src))
	return changed
}

// CompileCondition parses a query-language expression (spec.md §4.3's
// filter/combiner grammar, e.g. `artist = "Miles Davis" AND year > 1959`)
// against h's interning pool, for callers — like cmd/s4's query
// subcommand — that accept conditions as text rather than building a
// Condition tree directly.
func CompileCondition(h *Handle, expr string) (Condition, error) {
	return query.Compile(expr, h.pool)
}

// Query evaluates cond over the database's current state (including this
// transaction's own uncommitted writes) and projects each matching entry
// through fs, returning one ResultSet row per match (spec.md §4.3).
// Every matched entry is locked shared (held until Commit/Abort) before
// being fetched, and re-matched against cond once locked in case a
// concurrent writer changed it between the unlocked scan and the lock
// grant; Querying a transaction also marks it non-restartable (spec.md
// §4.4), so it takes the candidate scan's lock-then-verify approach
// rather than reusing query.FindAndFetch, which does neither.
func (t *Txn) Query(fs *FetchSpec, cond Condition) *ResultSet {
	t.t.MarkQueried()

	entries := query.Find(t.store, cond)
	rs := resultset.New(len(fs.Items))
	for _, e := range entries {
		if err := t.t.LockEntryShared(e.KeyA, e.ValA); err != nil {
			break
		}
		if !query.Match(cond, e) {
			continue
		}
		rs.AddRow(resultset.NewRow(query.Fetch(fs, e)))
	}
	return rs
}

// Commit serializes this transaction's operations to the write-ahead log
// and releases its locks, returning false if the transaction had already
// failed or the WAL write failed. The cause of a failure is not reported.
func (t *Txn) Commit() bool {
	err := t.t.Commit(t.ctx)
	return err == nil
}

// Abort rolls back every operation this transaction logged and releases
// its locks without touching the WAL.
func (t *Txn) Abort() bool {
	t.t.Abort(t.ctx)
	return true
}
