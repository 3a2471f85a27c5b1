package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-session/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultPollInterval = time.Second
	defaultOpTimeout    = 5 * time.Second
	defaultGapTimeout   = time.Minute
	maxTrackedGaps      = 1024
)

// Storage is a core.Storage kept in two tables: the current items and an
// append-only change log. Every process sharing the database is one
// execution context; Watch polls the change log for rows written by other
// origins.
type Storage struct {
	db           *bun.DB
	repo         repository.Repository[*itemRecord]
	origin       string
	pollInterval time.Duration
	opTimeout    time.Duration
	gapTimeout   time.Duration
	clock        core.Clock
	logger       core.Logger
	closer       func() error

	pollMu   sync.Mutex
	mu       sync.Mutex
	watchers map[uint64]func(core.StorageEvent)
	nextID   uint64
	lastSeq  int64
	// sequence numbers skipped below lastSeq, by when they were noticed
	gaps map[int64]time.Time
	// highest sequence applied per key
	keySeq map[string]int64
	seeded bool
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

type Option func(*Storage)

func WithOrigin(origin string) Option {
	return func(s *Storage) {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			s.origin = trimmed
		}
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(s *Storage) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

func WithOperationTimeout(timeout time.Duration) Option {
	return func(s *Storage) {
		if timeout > 0 {
			s.opTimeout = timeout
		}
	}
}

// WithGapTimeout bounds how long a skipped sequence number is re-checked
// before it is treated as a rolled back write.
func WithGapTimeout(timeout time.Duration) Option {
	return func(s *Storage) {
		if timeout > 0 {
			s.gapTimeout = timeout
		}
	}
}

func WithClock(clock core.Clock) Option {
	return func(s *Storage) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStorage(db *bun.DB, opts ...Option) (*Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*itemRecord](db, itemHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid item repository wiring: %w", err)
		}
	}
	storage := &Storage{
		db:           db,
		repo:         repo,
		origin:       uuid.NewString(),
		pollInterval: defaultPollInterval,
		opTimeout:    defaultOpTimeout,
		gapTimeout:   defaultGapTimeout,
		clock:        core.ClockFunc(time.Now),
		logger:       glog.Nop(),
		watchers:     map[uint64]func(core.StorageEvent){},
		gaps:         map[int64]time.Time{},
		keySeq:       map[string]int64{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(storage)
	}
	return storage, nil
}

func (s *Storage) Origin() string {
	if s == nil {
		return ""
	}
	return s.origin
}

func (s *Storage) DB() *bun.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Storage) GetItem(key string) (string, bool, error) {
	if s == nil || s.repo == nil {
		return "", false, fmt.Errorf("sqlstore: storage is not configured")
	}
	ctx, cancel := s.operationContext()
	defer cancel()

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("item_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return "", false, err
	}
	if len(records) == 0 || records[0] == nil {
		return "", false, nil
	}
	return records[0].Value, true, nil
}

func (s *Storage) SetItem(key string, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: storage is not configured")
	}
	ctx, cancel := s.operationContext()
	defer cancel()
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := findItemTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current == nil {
			record := &itemRecord{
				ID:        uuid.NewString(),
				ItemKey:   key,
				Value:     value,
				Origin:    s.origin,
				Version:   1,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := s.repo.CreateTx(ctx, tx, record); err != nil {
				return err
			}
		} else {
			if current.Value == value {
				return nil
			}
			if _, err := tx.NewUpdate().
				Model((*itemRecord)(nil)).
				Set("value = ?", value).
				Set("origin = ?", s.origin).
				Set("version = ?", current.Version+1).
				Set("updated_at = ?", now).
				Where("id = ?", current.ID).
				Exec(ctx); err != nil {
				return err
			}
		}
		return s.appendChangeTx(ctx, tx, key, &value, now)
	})
}

func (s *Storage) RemoveItem(key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: storage is not configured")
	}
	ctx, cancel := s.operationContext()
	defer cancel()
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*itemRecord)(nil)).
			Where("item_key = ?", key).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil
		}
		return s.appendChangeTx(ctx, tx, key, nil, now)
	})
}

// Watch registers fn for changes written by other origins. The first
// registration starts the poll loop; changes committed before it are not
// replayed.
func (s *Storage) Watch(fn func(core.StorageEvent)) (func(), error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: storage is not configured")
	}
	if fn == nil {
		return nil, fmt.Errorf("sqlstore: watch callback is required")
	}
	if err := s.seed(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("sqlstore: storage is closed")
	}
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn
	if s.cancel == nil {
		loopCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.pollLoop(loopCtx, s.done)
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}, nil
}

// Poll reads the change log once and dispatches unseen foreign changes to
// the registered watchers. It returns the number of events dispatched.
//
// Sequence numbers are assigned at insert but become visible at commit, so
// a row can appear below the position already read. Skipped numbers are
// re-checked until they show up or the gap timeout passes, and a late row
// is dropped when a newer change to the same key was already applied.
func (s *Storage) Poll(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: storage is not configured")
	}
	if err := s.seed(); err != nil {
		return 0, err
	}
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	s.mu.Lock()
	after := s.lastSeq
	pendingGaps := make([]int64, 0, len(s.gaps))
	for seq := range s.gaps {
		pendingGaps = append(pendingGaps, seq)
	}
	s.mu.Unlock()

	var changes []changeRecord
	query := s.db.NewSelect().
		Model(&changes).
		Where("?TableAlias.seq > ?", after)
	if len(pendingGaps) > 0 {
		query = query.WhereOr("?TableAlias.seq IN (?)", bun.In(pendingGaps))
	}
	if err := query.OrderExpr("?TableAlias.seq ASC").Scan(ctx); err != nil {
		return 0, err
	}

	now := s.clock.Now()
	s.mu.Lock()
	fresh := s.advanceLocked(changes, after, now)
	s.expireGapsLocked(now)
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	dispatched := 0
	for _, change := range fresh {
		if change.Origin == s.origin {
			continue
		}
		event := core.StorageEvent{
			Key:      change.ItemKey,
			NewValue: change.Value,
			Origin:   change.Origin,
		}
		for _, fn := range watchers {
			fn(event)
		}
		dispatched++
	}
	return dispatched, nil
}

// advanceLocked moves the read position over changes, records skipped
// sequence numbers and returns the rows that are not superseded.
func (s *Storage) advanceLocked(changes []changeRecord, after int64, now time.Time) []changeRecord {
	fresh := make([]changeRecord, 0, len(changes))
	prev := after
	for _, change := range changes {
		if change.Seq <= after {
			delete(s.gaps, change.Seq)
		} else {
			for missing := prev + 1; missing < change.Seq && len(s.gaps) < maxTrackedGaps; missing++ {
				s.gaps[missing] = now
			}
			prev = change.Seq
		}
		if change.Seq < s.keySeq[change.ItemKey] {
			s.logger.Debug("sqlstore dropping superseded change", "key", change.ItemKey, "seq", change.Seq)
			continue
		}
		s.keySeq[change.ItemKey] = change.Seq
		fresh = append(fresh, change)
	}
	if prev > s.lastSeq {
		s.lastSeq = prev
	}
	return fresh
}

func (s *Storage) expireGapsLocked(now time.Time) {
	for seq, noticed := range s.gaps {
		if now.Sub(noticed) >= s.gapTimeout {
			delete(s.gaps, seq)
		}
	}
}

// Prune drops change log rows older than the cutoff.
func (s *Storage) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: storage is not configured")
	}
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.NewDelete().
		Model((*changeRecord)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// Close stops the poll loop. The database handle is closed only when the
// storage was built by Factory.
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	done := s.done
	s.watchers = map[uint64]func(core.StorageEvent){}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

func (s *Storage) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
			if _, err := s.Poll(pollCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Debug("sqlstore change poll failed", "origin", s.origin, "error", err)
			}
			cancel()
		}
	}
}

func (s *Storage) seed() error {
	s.mu.Lock()
	seeded := s.seeded
	s.mu.Unlock()
	if seeded {
		return nil
	}

	ctx, cancel := s.operationContext()
	defer cancel()
	var maxSeq int64
	if err := s.db.NewSelect().
		Model((*changeRecord)(nil)).
		ColumnExpr("COALESCE(MAX(seq), 0)").
		Scan(ctx, &maxSeq); err != nil {
		return fmt.Errorf("sqlstore: read change log position: %w", err)
	}

	s.mu.Lock()
	if !s.seeded {
		s.lastSeq = maxSeq
		s.seeded = true
	}
	s.mu.Unlock()
	return nil
}

func (s *Storage) snapshotWatchers() []func(core.StorageEvent) {
	ids := make([]uint64, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(core.StorageEvent), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.watchers[id])
	}
	return out
}

func (s *Storage) appendChangeTx(ctx context.Context, tx bun.Tx, key string, value *string, at time.Time) error {
	change := &changeRecord{
		ItemKey:   key,
		Value:     value,
		Origin:    s.origin,
		CreatedAt: at,
	}
	_, err := tx.NewInsert().Model(change).Exec(ctx)
	return err
}

func (s *Storage) operationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

func findItemTx(ctx context.Context, tx bun.Tx, key string) (*itemRecord, error) {
	record := &itemRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.item_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
