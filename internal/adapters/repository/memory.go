package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/rating"
	"github.com/okian/ascent/internal/domain/streak"
	"github.com/okian/ascent/internal/domain/types"
)

// MemoryStore implements Store entirely in memory. It keeps the same
// transactional contract as the SQLite store: mutations stage on copies and
// publish only when the transaction body succeeds. Intended for tests and
// ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*memoryUser
	closed bool
}

type memoryUser struct {
	level   *LevelState
	streaks map[dimension.Dimension]*streak.State
	events  []EventRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*memoryUser)}
}

// Init creates the aggregate for a user. Idempotent.
func (m *MemoryStore) Init(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.users[userID]; ok {
		return nil
	}
	u := &memoryUser{
		level:   NewLevelState(userID, time.Now().UTC(), rating.InitialRating),
		streaks: make(map[dimension.Dimension]*streak.State),
	}
	for _, d := range dimension.All() {
		u.streaks[d] = &streak.State{Dimension: d}
	}
	m.users[userID] = u
	return nil
}

// Update stages all writes on copies and publishes them only when fn
// returns nil.
func (m *MemoryStore) Update(_ context.Context, userID string, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	tx := &memoryTx{store: m, userID: userID}
	if err := fn(tx); err != nil {
		return err
	}
	tx.publish()
	return nil
}

// View runs fn against the committed state under a read lock.
func (m *MemoryStore) View(_ context.Context, userID string, fn func(tx ReadTx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn(&memoryTx{store: m, userID: userID, readOnly: true})
}

// Count returns the number of initialized users.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.users), nil
}

// Close discards nothing but rejects further calls.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// memoryTx stages writes until publish. The store lock is held for the
// whole transaction, so reads see a consistent aggregate.
type memoryTx struct {
	store    *MemoryStore
	userID   string
	readOnly bool

	stagedLevel   *LevelState
	stagedStreaks []*streak.State
	stagedEvents  []EventRecord
}

func (t *memoryTx) user() (*memoryUser, error) {
	u, ok := t.store.users[t.userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, t.userID)
	}
	return u, nil
}

// Reads return the staged copy when the transaction has already written the
// row, matching the SQLite tx, where a statement sees the tx's own writes.
func (t *memoryTx) LevelState() (*LevelState, error) {
	u, err := t.user()
	if err != nil {
		return nil, err
	}
	if t.stagedLevel != nil {
		return copyLevelState(t.stagedLevel), nil
	}
	return copyLevelState(u.level), nil
}

func (t *memoryTx) StreakState(d dimension.Dimension) (*streak.State, error) {
	u, err := t.user()
	if err != nil {
		return nil, err
	}
	for i := len(t.stagedStreaks) - 1; i >= 0; i-- {
		if t.stagedStreaks[i].Dimension == d {
			cp := *t.stagedStreaks[i]
			return &cp, nil
		}
	}
	s, ok := u.streaks[d]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, t.userID)
	}
	cp := *s
	return &cp, nil
}

func (t *memoryTx) ActivityDays(d dimension.Dimension) ([]types.Day, error) {
	u, err := t.user()
	if err != nil {
		return nil, err
	}
	seen := make(map[types.Day]struct{})
	collect := func(events []EventRecord) {
		for _, ev := range events {
			if ev.Deleted || ev.Dimension != d {
				continue
			}
			if ev.Type != RecordXPAward && ev.Type != RecordActivityDay {
				continue
			}
			seen[ev.Day] = struct{}{}
		}
	}
	collect(u.events)
	collect(t.stagedEvents)
	days := make([]types.Day, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

func (t *memoryTx) HasEvent(id string) (bool, error) {
	u, err := t.user()
	if err != nil {
		return false, err
	}
	for _, ev := range u.events {
		if ev.ID == id {
			return true, nil
		}
	}
	for _, ev := range t.stagedEvents {
		if ev.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) PutLevelState(s *LevelState) error {
	if t.readOnly {
		return fmt.Errorf("put level state: read-only transaction")
	}
	t.stagedLevel = copyLevelState(s)
	return nil
}

func (t *memoryTx) PutStreakState(s *streak.State) error {
	if t.readOnly {
		return fmt.Errorf("put streak state: read-only transaction")
	}
	cp := *s
	t.stagedStreaks = append(t.stagedStreaks, &cp)
	return nil
}

func (t *memoryTx) AppendEvent(ev EventRecord) error {
	if t.readOnly {
		return fmt.Errorf("append event: read-only transaction")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ev.UserID = t.userID
	t.stagedEvents = append(t.stagedEvents, ev)
	return nil
}

// publish commits staged writes. Called with the store write lock held.
func (t *memoryTx) publish() {
	u, ok := t.store.users[t.userID]
	if !ok {
		return
	}
	if t.stagedLevel != nil {
		u.level = t.stagedLevel
	}
	for _, s := range t.stagedStreaks {
		cp := *s
		u.streaks[s.Dimension] = &cp
	}
	u.events = append(u.events, t.stagedEvents...)
}

func copyLevelState(s *LevelState) *LevelState {
	cp := *s
	cp.Dimensions = make(map[dimension.Dimension]*DimensionState, len(s.Dimensions))
	for d, ds := range s.Dimensions {
		dcp := *ds
		cp.Dimensions[d] = &dcp
	}
	return &cp
}
