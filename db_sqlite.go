package main

import (
	"database/sql"
	"strings"
	"time"
)

// SQLite store
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS bookmarks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL REFERENCES identities(id),
			title TEXT NOT NULL,
			url TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_public INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS revoked_tokens (
			jti TEXT PRIMARY KEY,
			revoked_at TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func sqliteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func (s *SQLiteStore) CreateIdentity(username, email, passwordHash, firstName, lastName string) (*Identity, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO identities(username,email,password_hash,first_name,last_name,created_at) VALUES(?,?,?,?,?,?)`,
		username, email, passwordHash, firstName, lastName, now)
	if err != nil {
		if sqliteUnique(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Identity{ID: id, Username: username, Email: email, PasswordHash: passwordHash, FirstName: firstName, LastName: lastName, CreatedAt: now}, nil
}

func (s *SQLiteStore) scanIdentity(row *sql.Row) (*Identity, error) {
	var u Identity
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) GetIdentityByID(id int64) (*Identity, error) {
	return s.scanIdentity(s.db.QueryRow(`SELECT id,username,email,password_hash,first_name,last_name,created_at FROM identities WHERE id = ?`, id))
}

func (s *SQLiteStore) GetIdentityByUsername(username string) (*Identity, error) {
	return s.scanIdentity(s.db.QueryRow(`SELECT id,username,email,password_hash,first_name,last_name,created_at FROM identities WHERE username = ?`, username))
}

func (s *SQLiteStore) GetIdentityByEmail(email string) (*Identity, error) {
	return s.scanIdentity(s.db.QueryRow(`SELECT id,username,email,password_hash,first_name,last_name,created_at FROM identities WHERE email = ?`, email))
}

func (s *SQLiteStore) CreateBookmark(ownerID int64, title, url, description string, isPublic bool) (*Bookmark, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO bookmarks(owner_id,title,url,description,is_public,created_at,updated_at) VALUES(?,?,?,?,?,?,?)`,
		ownerID, title, url, description, isPublic, now, now)
	if err != nil {
		if sqliteUnique(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Bookmark{ID: id, OwnerID: ownerID, Title: title, URL: url, Description: description, IsPublic: isPublic, CreatedAt: now, UpdatedAt: now}, nil
}

const sqliteBookmarkCols = `id,owner_id,title,url,description,is_public,created_at,updated_at`

func scanBookmarkRow(row *sql.Row) (*Bookmark, error) {
	var b Bookmark
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.URL, &b.Description, &b.IsPublic, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func scanBookmarkRows(rows *sql.Rows) ([]*Bookmark, error) {
	defer rows.Close()
	out := []*Bookmark{}
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Title, &b.URL, &b.Description, &b.IsPublic, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetBookmark(id int64) (*Bookmark, error) {
	return scanBookmarkRow(s.db.QueryRow(`SELECT `+sqliteBookmarkCols+` FROM bookmarks WHERE id = ?`, id))
}

func (s *SQLiteStore) GetBookmarkByURL(url string) (*Bookmark, error) {
	return scanBookmarkRow(s.db.QueryRow(`SELECT `+sqliteBookmarkCols+` FROM bookmarks WHERE url = ?`, url))
}

func (s *SQLiteStore) ListBookmarksVisibleTo(viewerID int64) ([]*Bookmark, error) {
	rows, err := s.db.Query(`SELECT `+sqliteBookmarkCols+` FROM bookmarks WHERE is_public = 1 OR owner_id = ? ORDER BY created_at DESC, id DESC`, viewerID)
	if err != nil {
		return nil, err
	}
	return scanBookmarkRows(rows)
}

func (s *SQLiteStore) ListBookmarksByOwner(ownerID int64) ([]*Bookmark, error) {
	rows, err := s.db.Query(`SELECT `+sqliteBookmarkCols+` FROM bookmarks WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return scanBookmarkRows(rows)
}

func (s *SQLiteStore) ListPublicBookmarks() ([]*Bookmark, error) {
	rows, err := s.db.Query(`SELECT ` + sqliteBookmarkCols + ` FROM bookmarks WHERE is_public = 1 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return scanBookmarkRows(rows)
}

func (s *SQLiteStore) UpdateBookmark(b *Bookmark) error {
	res, err := s.db.Exec(`UPDATE bookmarks SET title = ?, url = ?, description = ?, is_public = ?, updated_at = ? WHERE id = ?`,
		b.Title, b.URL, b.Description, b.IsPublic, b.UpdatedAt, b.ID)
	if err != nil {
		if sqliteUnique(err) {
			return ErrConflict
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteBookmark(id int64) error {
	res, err := s.db.Exec(`DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RevokeJTI(jti string, revokedAt time.Time) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO revoked_tokens(jti,revoked_at) VALUES(?,?)`, jti, revokedAt)
	return err
}

func (s *SQLiteStore) IsJTIRevoked(jti string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM revoked_tokens WHERE jti = ?`, jti).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) PruneRevoked(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM revoked_tokens WHERE revoked_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// lifecycle helpers
func (s *SQLiteStore) close() error { return s.db.Close() }
func (s *SQLiteStore) ping() bool   { return s.db.Ping() == nil }
