package store

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/Insura/internal/models"
)

// DefaultShardCount is the number of shards used by NewInMemoryStore.
const DefaultShardCount = 32

type memoryShard struct {
	mu     sync.RWMutex
	states map[string]*models.ConversationState
}

// InMemoryStore is a sharded in-memory ConversationStore. Records are cloned
// on the way in and out so callers never share memory with the store.
type InMemoryStore struct {
	shards []*memoryShard

	dedupMu sync.Mutex
	inbound map[string]InboundRecord
}

// Compile-time checks.
var (
	_ ConversationStore = (*InMemoryStore)(nil)
	_ DedupRepo         = (*InMemoryStore)(nil)
)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := Opts{Shards: DefaultShardCount}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShardCount
	}
	s := &InMemoryStore{
		shards:  make([]*memoryShard, cfg.Shards),
		inbound: make(map[string]InboundRecord),
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{states: make(map[string]*models.ConversationState)}
	}
	slog.Debug("NewInMemoryStore created", "shards", cfg.Shards)
	return s
}

func (s *InMemoryStore) shard(userID string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *InMemoryStore) Get(ctx context.Context, userID string) (*models.ConversationState, error) {
	sh := s.shard(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.states[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (s *InMemoryStore) Save(ctx context.Context, state *models.ConversationState) error {
	if state == nil || state.UserID == "" {
		return models.ErrEmptyUserID
	}
	sh := s.shard(state.UserID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.states[state.UserID] = state.Clone()
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, userID string) (bool, error) {
	sh := s.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.states[userID]; !ok {
		return false, nil
	}
	delete(sh.states, userID)
	return true, nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id := range sh.states {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func (s *InMemoryStore) SeenInbound(_ context.Context, messageID string) (bool, error) {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	_, ok := s.inbound[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID, userID string) (bool, error) {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = InboundRecord{MessageID: messageID, UserID: userID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkInboundProcessed(_ context.Context, messageID string) error {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	if rec, ok := s.inbound[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
		s.inbound[messageID] = rec
	}
	return nil
}

func (s *InMemoryStore) PruneInbound(_ context.Context, cutoff time.Time) (int, error) {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	n := 0
	for id, rec := range s.inbound {
		if rec.ProcessedAt != nil && rec.ProcessedAt.Before(cutoff) {
			delete(s.inbound, id)
			n++
		}
	}
	return n, nil
}
