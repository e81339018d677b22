package profile

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/hearken/pkg/vecmath"
)

// Compile-time interface assertion.
var _ Store = (*MemStore)(nil)

// MemStore is an in-process [Store]. It backs tests and single-node
// deployments without Postgres. All returned values are copies.
type MemStore struct {
	mu        sync.RWMutex
	profiles  map[string]*Profile // by id
	byUser    map[string]string   // user id → profile id
	samples   map[string][]Sample // by profile id, insertion order
	snapshots map[string][]Snapshot
	health    map[string][]HealthLogEntry
	negatives map[string][]NegativeExample // oldest first
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		profiles:  make(map[string]*Profile),
		byUser:    make(map[string]string),
		samples:   make(map[string][]Sample),
		snapshots: make(map[string][]Snapshot),
		health:    make(map[string][]HealthLogEntry),
		negatives: make(map[string][]NegativeExample),
	}
}

// ── Profiles ──────────────────────────────────────────────────────────────────

func (m *MemStore) ProfileByUser(_ context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.profiles[id].Clone(), nil
}

func (m *MemStore) Profile(_ context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemStore) CreateProfile(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return fmt.Errorf("profile: create profile %q: already exists", p.ID)
	}
	if _, ok := m.byUser[p.UserID]; ok {
		return fmt.Errorf("profile: create profile: user %q already has a profile", p.UserID)
	}
	m.profiles[p.ID] = p.Clone()
	m.byUser[p.UserID] = p.ID
	return nil
}

func (m *MemStore) UpdateProfile(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; !ok {
		return ErrNotFound
	}
	m.profiles[p.ID] = p.Clone()
	return nil
}

// ── Samples ───────────────────────────────────────────────────────────────────

func (m *MemStore) Samples(_ context.Context, profileID string, activeOnly bool) ([]Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Sample
	for _, s := range m.samples[profileID] {
		if activeOnly && !s.Active {
			continue
		}
		s.Embedding = slices.Clone(s.Embedding)
		out = append(out, s)
	}
	return out, nil
}

func (m *MemStore) CreateSample(_ context.Context, s *Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	c.Embedding = slices.Clone(s.Embedding)
	m.samples[s.ProfileID] = append(m.samples[s.ProfileID], c)
	return nil
}

func (m *MemStore) DeactivateSamples(_ context.Context, profileID string, ids []string, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.samples[profileID]
	for i := range list {
		if list[i].Active && slices.Contains(ids, list[i].ID) {
			list[i].Active = false
			list[i].DeactivatedReason = reason
			list[i].DeactivatedAt = at
		}
	}
	return nil
}

func (m *MemStore) UpdateDecay(_ context.Context, profileID string, decay map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.samples[profileID]
	for i := range list {
		if d, ok := decay[list[i].ID]; ok {
			list[i].Decay = d
		}
	}
	return nil
}

// ── Snapshots ─────────────────────────────────────────────────────────────────

func (m *MemStore) CreateSnapshot(_ context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.ProfileID] = append(m.snapshots[s.ProfileID], cloneSnapshot(*s))
	return nil
}

func (m *MemStore) Snapshot(_ context.Context, profileID, id string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.snapshots[profileID] {
		if s.ID == id {
			c := cloneSnapshot(s)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) LatestSnapshot(_ context.Context, profileID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.snapshots[profileID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	c := cloneSnapshot(list[len(list)-1])
	return &c, nil
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Centroid = slices.Clone(s.Centroid)
	s.SampleIDs = slices.Clone(s.SampleIDs)
	return s
}

// ── Health log ────────────────────────────────────────────────────────────────

func (m *MemStore) AppendHealthLog(_ context.Context, e *HealthLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *e
	c.Recommendations = slices.Clone(e.Recommendations)
	m.health[e.ProfileID] = append(m.health[e.ProfileID], c)
	return nil
}

func (m *MemStore) HealthLogs(_ context.Context, profileID string, limit int) ([]HealthLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.health[profileID]
	var out []HealthLogEntry
	for i := len(list) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		e := list[i]
		e.Recommendations = slices.Clone(e.Recommendations)
		out = append(out, e)
	}
	return out, nil
}

// ── Negatives ─────────────────────────────────────────────────────────────────

func (m *MemStore) CreateNegative(_ context.Context, n *NegativeExample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *n
	c.Embedding = slices.Clone(n.Embedding)
	list := append(m.negatives[n.ProfileID], c)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CapturedAt.Before(list[j].CapturedAt) })
	m.negatives[n.ProfileID] = list
	return nil
}

func (m *MemStore) RecentNegatives(_ context.Context, profileID string, limit int) ([]NegativeExample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.negatives[profileID]
	var out []NegativeExample
	for i := len(list) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		n := list[i]
		n.Embedding = slices.Clone(n.Embedding)
		out = append(out, n)
	}
	return out, nil
}

func (m *MemStore) TrimNegatives(_ context.Context, profileID string, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.negatives[profileID]
	if keep < 0 || len(list) <= keep {
		return 0, nil
	}
	n := len(list) - keep
	m.negatives[profileID] = slices.Clone(list[n:])
	return n, nil
}

func (m *MemStore) NearestNegative(_ context.Context, profileID string, emb []float32) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.negatives[profileID]
	if len(list) == 0 {
		return 0, false, nil
	}
	best := -1.0
	for _, n := range list {
		best = max(best, vecmath.Cosine(emb, n.Embedding))
	}
	return best, true, nil
}
