package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[int64]User
	usernames map[string]int64

	analyses map[int64]AnalysisRecord
	repos    map[string]int64

	nextUserID     int64
	nextAnalysisID int64
	now            func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]User),
		usernames: make(map[string]int64),
		analyses:  make(map[int64]AnalysisRecord),
		repos:     make(map[string]int64),
		now:       time.Now,
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, username, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(username)
	if _, ok := m.usernames[key]; ok {
		return nil, ErrUsernameTaken
	}
	m.nextUserID++
	u := User{ID: m.nextUserID, Username: username, PasswordHash: passwordHash, CreatedAt: m.now().UTC()}
	m.users[u.ID] = u
	m.usernames[key] = u.ID
	return &u, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[strings.ToLower(username)]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.users[id]
	return &u, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) SaveAnalysis(_ context.Context, rec *AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	stored := *rec
	stored.Data = append([]byte(nil), rec.Data...)
	stored.UpdatedAt = now

	if id, ok := m.repos[rec.RepoKey]; ok {
		prev := m.analyses[id]
		stored.ID = id
		stored.CreatedAt = prev.CreatedAt
		if stored.UserID == nil {
			stored.UserID = prev.UserID
		}
	} else {
		m.nextAnalysisID++
		stored.ID = m.nextAnalysisID
		stored.CreatedAt = now
		m.repos[rec.RepoKey] = stored.ID
	}
	m.analyses[stored.ID] = stored

	rec.ID = stored.ID
	rec.UserID = stored.UserID
	rec.CreatedAt = stored.CreatedAt
	rec.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) GetAnalysisByRepo(ctx context.Context, repoKey string) (*AnalysisRecord, error) {
	m.mu.RLock()
	id, ok := m.repos[repoKey]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetAnalysis(ctx, id)
}

func (m *MemoryStore) GetAnalysis(_ context.Context, id int64) (*AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.analyses[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Data = append([]byte(nil), rec.Data...)
	return &rec, nil
}

func (m *MemoryStore) ListAnalyses(_ context.Context, filter ListFilter) ([]AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []AnalysisRecord{}
	for _, rec := range m.analyses {
		if filter.UserID != nil && (rec.UserID == nil || *rec.UserID != *filter.UserID) {
			continue
		}
		rec.Data = nil
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteAnalysis(_ context.Context, id, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.analyses[id]
	if !ok || rec.UserID == nil || *rec.UserID != userID {
		return ErrNotFound
	}
	delete(m.analyses, id)
	delete(m.repos, rec.RepoKey)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
