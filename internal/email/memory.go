package email

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	records map[uuid.UUID]*Record
	now     func() time.Time
	mu      sync.Mutex
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for created/updated timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[uuid.UUID]*Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, r *Record) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.ID]; ok {
		return false, nil
	}
	if r.ProviderMessageID != "" && s.byProviderID(r.ProviderMessageID) != nil {
		return false, nil
	}

	stored := clone(r)
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.Metadata == nil {
		stored.Metadata = map[string]any{}
	}
	s.records[r.ID] = stored
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (s *MemoryStore) FindByProviderID(_ context.Context, providerID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r := s.byProviderID(providerID); r != nil {
		return clone(r), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) byProviderID(providerID string) *Record {
	if providerID == "" {
		return nil
	}
	for _, r := range s.records {
		if r.ProviderMessageID == providerID {
			return r
		}
	}
	return nil
}

func (s *MemoryStore) FindLatestActive(_ context.Context, recipient, event string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Record
	for _, r := range s.records {
		if r.Status.Terminal() || r.EventName != event || !strings.EqualFold(r.RecipientEmail, recipient) {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return clone(latest), nil
}

func (s *MemoryStore) Apply(_ context.Context, id uuid.UUID, u Update) (*Applied, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	applied := &Applied{Previous: r.Status}

	if u.Status != "" && slices.Contains(u.allowedFrom(), r.Status) {
		r.Status = u.Status
	}
	if r.ProviderMessageID == "" && u.ProviderMessageID != "" {
		r.ProviderMessageID = u.ProviderMessageID
	}
	setOnce(&r.SentAt, u.SentAt)
	setOnce(&r.OpenedAt, u.OpenedAt)
	setOnce(&r.ClickedAt, u.ClickedAt)
	r.OpenCount += u.OpenCount
	r.ClickCount += u.ClickCount
	r.OpenCount = max(r.OpenCount, u.MinOpenCount)
	if u.Error != "" {
		r.Error = u.Error
	}

	maps.Copy(r.Metadata, u.Merge)
	for k, v := range u.Append {
		list, _ := r.Metadata[k].([]any)
		r.Metadata[k] = append(slices.Clone(list), v)
	}
	r.UpdatedAt = s.now()

	applied.Record = clone(r)
	return applied, nil
}

func (s *MemoryStore) ListStale(_ context.Context, statuses []Status, before time.Time, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, r := range s.records {
		if slices.Contains(statuses, r.Status) && r.UpdatedAt.Before(before) {
			out = append(out, clone(r))
		}
	}
	slices.SortFunc(out, func(a, b *Record) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func setOnce(dst **time.Time, v *time.Time) {
	if *dst == nil && v != nil {
		t := *v
		*dst = &t
	}
}

// clone copies r deeply enough that callers cannot mutate stored state.
func clone(r *Record) *Record {
	c := *r
	c.Metadata = cloneMeta(r.Metadata)
	c.SentAt = cloneTime(r.SentAt)
	c.OpenedAt = cloneTime(r.OpenedAt)
	c.ClickedAt = cloneTime(r.ClickedAt)
	return &c
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if list, ok := v.([]any); ok {
			v = slices.Clone(list)
		}
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
