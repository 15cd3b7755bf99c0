package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("invalid credentials")

type User struct {
	ID       string
	Username string
	Role     string
}

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

func (u *UserRepo) Authenticate(ctx context.Context, username, password string) (User, error) {
	if username == "" || password == "" {
		return User{}, ErrBadCredentials
	}
	var usr User
	var hash string
	err := u.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash FROM users WHERE username=$1`, username,
	).Scan(&usr.ID, &usr.Username, &usr.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return usr, nil
}

// Ensure creates the user if the username is free, or refreshes hash and role if not.
// The id of an existing user never changes.
func (u *UserRepo) Ensure(ctx context.Context, username, passHash, role string) (User, error) {
	_, err := u.db.ExecContext(ctx, `INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (username) DO UPDATE SET password_hash=EXCLUDED.password_hash, role=EXCLUDED.role`,
		uuid.NewString(), username, passHash, role, time.Now().Unix())
	if err != nil {
		return User{}, err
	}
	usr := User{Username: username}
	err = u.db.QueryRowContext(ctx, `SELECT id, role FROM users WHERE username=$1`, username).Scan(&usr.ID, &usr.Role)
	return usr, err
}

// Register hashes password with bcrypt and stores a new user.
func (u *UserRepo) Register(ctx context.Context, username, password, role string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return u.Ensure(ctx, username, string(hash), role)
}
