package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/learn-decentralized-systems/toyqueue"
	"github.com/learn-decentralized-systems/toytlv"

	"github.com/dshills/geostorm/internal/engine/history"
	"github.com/dshills/geostorm/internal/logx"
)

// Common errors for journal operations.
var (
	ErrClosed    = errors.New("journal is closed")
	ErrNoEntry   = errors.New("no journal entry for sequence")
	ErrBadPacket = errors.New("malformed journal packet")
	ErrBadStatus = errors.New("malformed status marker")
)

// Default configuration values.
const (
	DefaultCacheSize = 256
	DefaultHoseLimit = 1024
)

// Key layout. Transaction packets sort by sequence so an ascending
// iterator over the 'T' space replays in commit order.
var (
	keyLastSeq = []byte("Mlastseq")

	prefixPacket byte = 'T'
	prefixStatus byte = 'S'
)

func packetKey(seq uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefixPacket
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

func statusKey(seq uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefixStatus
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

// Status is the journal-level state of a recorded transaction.
type Status byte

const (
	// StatusApplied marks a transaction whose effects are in the store.
	StatusApplied Status = 'a'
	// StatusUndone marks a transaction currently reverted.
	StatusUndone Status = 'u'
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusUndone:
		return "undone"
	default:
		return "unknown"
	}
}

// Entry is one decoded journal transaction.
type Entry struct {
	Seq      uint64
	Parent   uint64
	Label    string
	When     time.Time
	Status   Status
	Outcomes []history.Outcome
}

// Journal is a durable log of committed edit transactions. It
// implements the engine's journal contract: Committed appends inside
// the commit critical section, Undone and Redone record status
// markers. Safe for concurrent use.
type Journal struct {
	log logx.Logger
	dir string
	db  *pebble.DB

	wo        pebble.WriteOptions
	hoseLimit int
	cacheSize int

	appendLock sync.Mutex
	lastSeq    atomic.Uint64
	closed     atomic.Bool

	cache *lru.Cache[uint64, *Entry]

	outlock sync.Mutex
	outq    map[string]*toyqueue.RecordQueue

	appended atomic.Uint64
	marked   atomic.Uint64
	replayed atomic.Uint64
}

// Option configures a Journal during Open.
type Option func(*Journal)

// WithLogger sets the journal logger.
func WithLogger(log logx.Logger) Option {
	return func(j *Journal) {
		if log != nil {
			j.log = log
		}
	}
}

// WithSync makes every append fsync before returning. Slower, but a
// journaled transaction then survives process and OS crashes alike.
func WithSync(sync bool) Option {
	return func(j *Journal) {
		j.wo.Sync = sync
	}
}

// WithCacheSize sets how many decoded entries the journal keeps in
// memory.
func WithCacheSize(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.cacheSize = n
		}
	}
}

// WithHoseLimit sets the queue capacity of newly attached packet hoses.
func WithHoseLimit(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.hoseLimit = n
		}
	}
}

// Open opens (or creates) a journal at dir.
func Open(dir string, opts ...Option) (*Journal, error) {
	j := &Journal{
		dir:       dir,
		wo:        pebble.WriteOptions{Sync: false},
		hoseLimit: DefaultHoseLimit,
		cacheSize: DefaultCacheSize,
		outq:      make(map[string]*toyqueue.RecordQueue),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.log == nil {
		j.log = logx.New(slog.LevelInfo)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("journal open %s: %w", dir, err)
	}
	j.db = db

	cache, err := lru.New[uint64, *Entry](j.cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.cache = cache

	last, err := j.readLastSeq()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.lastSeq.Store(last)
	j.log.Debug("journal opened", "dir", dir, "last_seq", last)
	return j, nil
}

// Close detaches all hoses and closes the underlying database.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	j.outlock.Lock()
	for name, q := range j.outq {
		_ = q.Close()
		delete(j.outq, name)
	}
	j.outlock.Unlock()
	return j.db.Close()
}

// Dir returns the directory the journal lives in.
func (j *Journal) Dir() string { return j.dir }

// LastSeq returns the highest sequence number ever appended. Feed it
// to the engine's sequence base when resuming on an existing journal.
func (j *Journal) LastSeq() uint64 { return j.lastSeq.Load() }

// ============================================================================
// Engine Contract
// ============================================================================

// Committed appends a committed transaction. It runs inside the
// engine's commit critical section; an error here vetoes the commit.
func (j *Journal) Committed(rec *history.Record) error {
	if j.closed.Load() {
		return ErrClosed
	}
	packet, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	j.appendLock.Lock()
	defer j.appendLock.Unlock()

	b := j.db.NewBatch()
	defer b.Close()
	if err := b.Set(packetKey(rec.Seq), packet, nil); err != nil {
		return err
	}
	if err := b.Set(statusKey(rec.Seq), []byte{byte(StatusApplied)}, nil); err != nil {
		return err
	}
	if rec.Seq > j.lastSeq.Load() {
		var lastBuf [8]byte
		binary.BigEndian.PutUint64(lastBuf[:], rec.Seq)
		if err := b.Set(keyLastSeq, lastBuf[:], nil); err != nil {
			return err
		}
	}
	if err := j.db.Apply(b, &j.wo); err != nil {
		return fmt.Errorf("journal append seq %d: %w", rec.Seq, err)
	}

	if rec.Seq > j.lastSeq.Load() {
		j.lastSeq.Store(rec.Seq)
	}
	j.appended.Add(1)
	j.cache.Add(rec.Seq, entryFromRecord(rec))
	j.Broadcast(toyqueue.Records{packet}, "")
	return nil
}

// Undone marks a recorded transaction as reverted.
func (j *Journal) Undone(seq uint64) error {
	return j.mark(seq, StatusUndone, litUndone)
}

// Redone marks a previously undone transaction as applied again.
func (j *Journal) Redone(seq uint64) error {
	return j.mark(seq, StatusApplied, litRedone)
}

func (j *Journal) mark(seq uint64, st Status, lit byte) error {
	if j.closed.Load() {
		return ErrClosed
	}
	if seq == 0 || seq > j.lastSeq.Load() {
		return fmt.Errorf("%w: %d", ErrNoEntry, seq)
	}
	if err := j.db.Set(statusKey(seq), []byte{byte(st)}, &j.wo); err != nil {
		return fmt.Errorf("journal mark seq %d: %w", seq, err)
	}
	j.marked.Add(1)
	if e, ok := j.cache.Get(seq); ok {
		// Entries are shared; swap, never mutate in place.
		cp := *e
		cp.Status = st
		j.cache.Add(seq, &cp)
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	j.Broadcast(toyqueue.Records{toytlv.Record(lit, toytlv.Record(litSeq, seqBuf[:]))}, "")
	return nil
}

// ============================================================================
// Reading
// ============================================================================

// Entry loads one recorded transaction by sequence number.
func (j *Journal) Entry(seq uint64) (*Entry, error) {
	if j.closed.Load() {
		return nil, ErrClosed
	}
	if e, ok := j.cache.Get(seq); ok {
		return e, nil
	}
	val, closer, err := j.db.Get(packetKey(seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNoEntry, seq)
		}
		return nil, err
	}
	packet := append([]byte(nil), val...)
	_ = closer.Close()

	e, err := decodePacket(packet)
	if err != nil {
		return nil, fmt.Errorf("seq %d: %w", seq, err)
	}
	e.Status, err = j.Status(seq)
	if err != nil {
		return nil, err
	}
	j.cache.Add(seq, e)
	return e, nil
}

// Status returns the current status marker of a recorded transaction.
func (j *Journal) Status(seq uint64) (Status, error) {
	val, closer, err := j.db.Get(statusKey(seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, fmt.Errorf("%w: %d", ErrNoEntry, seq)
		}
		return 0, err
	}
	defer closer.Close()
	if len(val) != 1 {
		return 0, fmt.Errorf("%w: seq %d", ErrBadStatus, seq)
	}
	return Status(val[0]), nil
}

// Scan visits recorded transactions in sequence order, lowest first,
// within [from, to]. A zero to means no upper bound. The callback
// returns false to stop early.
func (j *Journal) Scan(from, to uint64, fn func(*Entry) bool) error {
	if j.closed.Load() {
		return ErrClosed
	}
	if to == 0 {
		to = ^uint64(0)
	}
	it, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: packetKey(from),
		UpperBound: []byte{prefixPacket + 1},
	})
	if err != nil {
		return err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		seq := binary.BigEndian.Uint64(it.Key()[1:])
		if seq > to {
			break
		}
		e, err := decodePacket(it.Value())
		if err != nil {
			return fmt.Errorf("seq %d: %w", seq, err)
		}
		if e.Status, err = j.Status(seq); err != nil {
			return err
		}
		if !fn(e) {
			break
		}
	}
	return it.Error()
}

// Count returns how many transactions the journal holds.
func (j *Journal) Count() (int, error) {
	n := 0
	err := j.Scan(0, 0, func(*Entry) bool {
		n++
		return true
	})
	return n, err
}

func (j *Journal) readLastSeq() (uint64, error) {
	val, closer, err := j.db.Get(keyLastSeq)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("%w: last-seq meta", ErrBadPacket)
	}
	return binary.BigEndian.Uint64(val), nil
}

// ============================================================================
// Stats
// ============================================================================

// Stats is a point-in-time snapshot of journal counters.
type Stats struct {
	LastSeq  uint64
	Appended uint64
	Marked   uint64
	Replayed uint64
	Cached   int
	Hoses    int
}

// Stats returns current journal counters.
func (j *Journal) Stats() Stats {
	j.outlock.Lock()
	hoses := len(j.outq)
	j.outlock.Unlock()
	return Stats{
		LastSeq:  j.lastSeq.Load(),
		Appended: j.appended.Load(),
		Marked:   j.marked.Load(),
		Replayed: j.replayed.Load(),
		Cached:   j.cache.Len(),
		Hoses:    hoses,
	}
}
