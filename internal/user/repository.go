package user

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

type CredentialsRepository interface {
	CreateCredentials(ctx context.Context, c *Credentials) error
	GetCredentials(ctx context.Context, username string) (*Credentials, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateCredentials(ctx context.Context, c *Credentials) error {
	query := "INSERT INTO credentials (username, password_hash) VALUES ($1, $2)"
	_, err := r.db.ExecContext(ctx, query, c.Username, c.PasswordHash)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return ErrAlreadyExists
	}
	return err
}

func (r *Repository) GetCredentials(ctx context.Context, username string) (*Credentials, error) {
	c := &Credentials{}
	query := "SELECT username, password_hash FROM credentials WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).Scan(&c.Username, &c.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// MemoryRepository keeps credentials in process for `serve --memory` and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	creds map[string]Credentials
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{creds: make(map[string]Credentials)}
}

func (r *MemoryRepository) CreateCredentials(_ context.Context, c *Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creds[c.Username]; ok {
		return ErrAlreadyExists
	}
	r.creds[c.Username] = *c
	return nil
}

func (r *MemoryRepository) GetCredentials(_ context.Context, username string) (*Credentials, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creds[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}
