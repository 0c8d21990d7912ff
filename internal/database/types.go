package database

import (
	"context"
	"database/sql"
	"time"
)

type Database interface {
	GetDB() *sql.DB

	Exec(query string, args ...any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
	Close() error
	ExecWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error)

	GetUser(userID int64) (*User, error)
	SaveUser(user User) error

	// Command invocation log
	SaveInvocation(ctx context.Context, inv Invocation) error
	CountInvocations(userID int64, since time.Duration) (int, error)
	PurgeOldInvocations(retention time.Duration) (int64, error)
}

type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SameProfile reports whether the Telegram-visible fields match.
func (u User) SameProfile(user User) bool {
	return u.FirstName == user.FirstName && u.Username == user.Username
}

type InvocationStatus string

const (
	StatusOK          InvocationStatus = "ok"
	StatusFailed      InvocationStatus = "failed"
	StatusRateLimited InvocationStatus = "rate_limited"
	StatusBadArgs     InvocationStatus = "bad_arguments"
	StatusCancelled   InvocationStatus = "cancelled"
)

type Invocation struct {
	ID        string
	ChatID    int64
	MessageID int
	UserID    int64
	Command   string
	Status    InvocationStatus
	Error     string
	Duration  time.Duration
}
