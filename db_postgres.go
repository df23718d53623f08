package main

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db  *sql.DB
	dsn string
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresStore{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) Init() error {
	// tables come from migrations; just verify connectivity
	return p.db.Ping()
}

func pgUnique(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (p *PostgresStore) CreateIdentity(username, email, passwordHash, firstName, lastName string) (*Identity, error) {
	u := &Identity{Username: username, Email: email, PasswordHash: passwordHash, FirstName: firstName, LastName: lastName}
	err := p.db.QueryRow(`INSERT INTO identities(username,email,password_hash,first_name,last_name,created_at) VALUES($1,$2,$3,$4,$5,now()) RETURNING id,created_at`,
		username, email, passwordHash, firstName, lastName).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if pgUnique(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return u, nil
}

func (p *PostgresStore) scanIdentity(row *sql.Row) (*Identity, error) {
	var u Identity
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) GetIdentityByID(id int64) (*Identity, error) {
	return p.scanIdentity(p.db.QueryRow(`SELECT id,username,email,password_hash,first_name,last_name,created_at FROM identities WHERE id = $1`, id))
}

func (p *PostgresStore) GetIdentityByUsername(username string) (*Identity, error) {
	return p.scanIdentity(p.db.QueryRow(`SELECT id,username,email,password_hash,first_name,last_name,created_at FROM identities WHERE username = $1`, username))
}

func (p *PostgresStore) GetIdentityByEmail(email string) (*Identity, error) {
	return p.scanIdentity(p.db.QueryRow(`SELECT id,username,email,password_hash,first_name,last_name,created_at FROM identities WHERE email = $1`, email))
}

const pgBookmarkCols = `id,owner_id,title,url,description,is_public,created_at,updated_at`

func (p *PostgresStore) CreateBookmark(ownerID int64, title, url, description string, isPublic bool) (*Bookmark, error) {
	b := &Bookmark{OwnerID: ownerID, Title: title, URL: url, Description: description, IsPublic: isPublic}
	err := p.db.QueryRow(`INSERT INTO bookmarks(owner_id,title,url,description,is_public,created_at,updated_at) VALUES($1,$2,$3,$4,$5,now(),now()) RETURNING id,created_at,updated_at`,
		ownerID, title, url, description, isPublic).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if pgUnique(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return b, nil
}

func (p *PostgresStore) GetBookmark(id int64) (*Bookmark, error) {
	return scanBookmarkRow(p.db.QueryRow(`SELECT `+pgBookmarkCols+` FROM bookmarks WHERE id = $1`, id))
}

func (p *PostgresStore) GetBookmarkByURL(url string) (*Bookmark, error) {
	return scanBookmarkRow(p.db.QueryRow(`SELECT `+pgBookmarkCols+` FROM bookmarks WHERE url = $1`, url))
}

func (p *PostgresStore) ListBookmarksVisibleTo(viewerID int64) ([]*Bookmark, error) {
	rows, err := p.db.Query(`SELECT `+pgBookmarkCols+` FROM bookmarks WHERE is_public OR owner_id = $1 ORDER BY created_at DESC, id DESC`, viewerID)
	if err != nil {
		return nil, err
	}
	return scanBookmarkRows(rows)
}

func (p *PostgresStore) ListBookmarksByOwner(ownerID int64) ([]*Bookmark, error) {
	rows, err := p.db.Query(`SELECT `+pgBookmarkCols+` FROM bookmarks WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return scanBookmarkRows(rows)
}

func (p *PostgresStore) ListPublicBookmarks() ([]*Bookmark, error) {
	rows, err := p.db.Query(`SELECT ` + pgBookmarkCols + ` FROM bookmarks WHERE is_public ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return scanBookmarkRows(rows)
}

func (p *PostgresStore) UpdateBookmark(b *Bookmark) error {
	res, err := p.db.Exec(`UPDATE bookmarks SET title = $1, url = $2, description = $3, is_public = $4, updated_at = $5 WHERE id = $6`,
		b.Title, b.URL, b.Description, b.IsPublic, b.UpdatedAt, b.ID)
	if err != nil {
		if pgUnique(err) {
			return ErrConflict
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteBookmark(id int64) error {
	res, err := p.db.Exec(`DELETE FROM bookmarks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) RevokeJTI(jti string, revokedAt time.Time) error {
	_, err := p.db.Exec(`INSERT INTO revoked_tokens(jti,revoked_at) VALUES($1,$2) ON CONFLICT (jti) DO NOTHING`, jti, revokedAt)
	return err
}

func (p *PostgresStore) IsJTIRevoked(jti string) (bool, error) {
	var one int
	err := p.db.QueryRow(`SELECT 1 FROM revoked_tokens WHERE jti = $1`, jti).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *PostgresStore) PruneRevoked(before time.Time) (int64, error) {
	res, err := p.db.Exec(`DELETE FROM revoked_tokens WHERE revoked_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PostgresStore) close() error { return p.db.Close() }
func (p *PostgresStore) ping() bool   { return p.db.Ping() == nil }
