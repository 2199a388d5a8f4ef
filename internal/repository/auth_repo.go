package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"kodibridge"
)

const (
	insertUserSQL           = `INSERT INTO users (username, password_hash) VALUES (?, ?)`
	selectUserByUsernameSQL = `SELECT id, username, password_hash FROM users WHERE username = ?`
)

// UserRepository stores hub operator accounts. Passwords arrive already
// hashed; this layer never sees plaintext.
type UserRepository struct {
	db *sql.DB
}

var _ Authorization = (*UserRepository)(nil)

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new account and reports the row id assigned to it.
func (r *UserRepository) Create(username, passwordHash string) (int, error) {
	res, err := r.db.Exec(insertUserSQL, username, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("insert user %q: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for user %q: %w", username, err)
	}
	return int(id), nil
}

// GetByUsername looks an account up by name. A missing account is not an
// error; the caller gets a nil user.
func (r *UserRepository) GetByUsername(username string) (*kodibridge.User, error) {
	row := r.db.QueryRow(selectUserByUsernameSQL, username)

	var u kodibridge.User
	switch err := row.Scan(&u.ID, &u.Username, &u.PasswordHash); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("select user %q: %w", username, err)
	}
	return &u, nil
}
