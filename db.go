package main

import (
	"sort"
	"sync"
	"time"
)

// Store abstracts the relational backend. Adapters return ErrNotFound
// and ErrConflict rather than driver-specific errors.
type Store interface {
	Init() error

	// Identity operations
	CreateIdentity(username, email, passwordHash, firstName, lastName string) (*Identity, error)
	GetIdentityByID(id int64) (*Identity, error)
	GetIdentityByUsername(username string) (*Identity, error)
	GetIdentityByEmail(email string) (*Identity, error)

	// Bookmark operations. Lists are ordered newest first.
	CreateBookmark(ownerID int64, title, url, description string, isPublic bool) (*Bookmark, error)
	GetBookmark(id int64) (*Bookmark, error)
	GetBookmarkByURL(url string) (*Bookmark, error)
	ListBookmarksVisibleTo(viewerID int64) ([]*Bookmark, error)
	ListBookmarksByOwner(ownerID int64) ([]*Bookmark, error)
	ListPublicBookmarks() ([]*Bookmark, error)
	UpdateBookmark(b *Bookmark) error
	DeleteBookmark(id int64) error

	// Revocation ledger. RevokeJTI is idempotent: inserting an
	// already-revoked jti is a no-op, also under concurrent calls.
	RevokeJTI(jti string, revokedAt time.Time) error
	IsJTIRevoked(jti string) (bool, error)
	PruneRevoked(before time.Time) (int64, error)
}

// Memory store, used by tests and DB_ADAPTER=memory
type MemStore struct {
	mu          sync.RWMutex
	identities  map[int64]*Identity
	byUsername  map[string]int64
	byEmail     map[string]int64
	bookmarks   map[int64]*Bookmark
	byURL       map[string]int64
	revoked     map[string]time.Time
	identitySeq int64
	bookmarkSeq int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		identities: map[int64]*Identity{},
		byUsername: map[string]int64{},
		byEmail:    map[string]int64{},
		bookmarks:  map[int64]*Bookmark{},
		byURL:      map[string]int64{},
		revoked:    map[string]time.Time{},
	}
}

func (m *MemStore) Init() error { return nil }

func (m *MemStore) CreateIdentity(username, email, passwordHash, firstName, lastName string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUsername[username]; ok {
		return nil, ErrConflict
	}
	if _, ok := m.byEmail[email]; ok {
		return nil, ErrConflict
	}
	m.identitySeq++
	id := &Identity{
		ID:           m.identitySeq,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		CreatedAt:    time.Now().UTC(),
	}
	m.identities[id.ID] = id
	m.byUsername[username] = id.ID
	m.byEmail[email] = id.ID
	return cloneIdentity(id), nil
}

func (m *MemStore) GetIdentityByID(id int64) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneIdentity(u), nil
}

func (m *MemStore) GetIdentityByUsername(username string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneIdentity(m.identities[id]), nil
}

func (m *MemStore) GetIdentityByEmail(email string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneIdentity(m.identities[id]), nil
}

func (m *MemStore) CreateBookmark(ownerID int64, title, url, description string, isPublic bool) (*Bookmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byURL[url]; ok {
		return nil, ErrConflict
	}
	m.bookmarkSeq++
	now := time.Now().UTC()
	b := &Bookmark{
		ID:          m.bookmarkSeq,
		OwnerID:     ownerID,
		Title:       title,
		URL:         url,
		Description: description,
		IsPublic:    isPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.bookmarks[b.ID] = b
	m.byURL[url] = b.ID
	return cloneBookmark(b), nil
}

func (m *MemStore) GetBookmark(id int64) (*Bookmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookmarks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBookmark(b), nil
}

func (m *MemStore) GetBookmarkByURL(url string) (*Bookmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byURL[url]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBookmark(m.bookmarks[id]), nil
}

func (m *MemStore) ListBookmarksVisibleTo(viewerID int64) ([]*Bookmark, error) {
	return m.list(func(b *Bookmark) bool { return b.IsPublic || b.OwnerID == viewerID })
}

func (m *MemStore) ListBookmarksByOwner(ownerID int64) ([]*Bookmark, error) {
	return m.list(func(b *Bookmark) bool { return b.OwnerID == ownerID })
}

func (m *MemStore) ListPublicBookmarks() ([]*Bookmark, error) {
	return m.list(func(b *Bookmark) bool { return b.IsPublic })
}

func (m *MemStore) list(keep func(*Bookmark) bool) ([]*Bookmark, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Bookmark{}
	for _, b := range m.bookmarks {
		if keep(b) {
			out = append(out, cloneBookmark(b))
		}
	}
	// newest first; ids are monotonic so they break created_at ties
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemStore) UpdateBookmark(b *Bookmark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookmarks[b.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.URL != b.URL {
		if _, taken := m.byURL[b.URL]; taken {
			return ErrConflict
		}
		delete(m.byURL, cur.URL)
		m.byURL[b.URL] = b.ID
	}
	saved := *b
	saved.OwnerID = cur.OwnerID // ownership is never reassigned
	saved.CreatedAt = cur.CreatedAt
	m.bookmarks[b.ID] = &saved
	return nil
}

func (m *MemStore) DeleteBookmark(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookmarks[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byURL, b.URL)
	delete(m.bookmarks, id)
	return nil
}

func (m *MemStore) RevokeJTI(jti string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revoked[jti]; !ok {
		m.revoked[jti] = revokedAt
	}
	return nil
}

func (m *MemStore) IsJTIRevoked(jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

func (m *MemStore) PruneRevoked(before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, at := range m.revoked {
		if at.Before(before) {
			delete(m.revoked, jti)
			n++
		}
	}
	return n, nil
}

func cloneIdentity(u *Identity) *Identity {
	c := *u
	return &c
}

func cloneBookmark(b *Bookmark) *Bookmark {
	c := *b
	return &c
}

// lifecycle helpers
func (m *MemStore) close() error { return nil }
func (m *MemStore) ping() bool   { return true }
