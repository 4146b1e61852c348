package model

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

type Account struct {
	Email        string
	PasswordHash string
	Role         Role
	Grants       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Account) HasGrant(courseID string) bool {
	for _, grant := range a.Grants {
		if grant == courseID {
			return true
		}
	}
	return false
}

// Session is the value returned at issuance. The plaintext token is never
// stored; only its hash lives in the session store.
type Session struct {
	AccountEmail string
	Token        string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

type Course struct {
	ID          string
	DisplayName string
	Topics      string
	CreatedAt   time.Time
}

// Lesson content references are opaque blob keys. Either may be absent.
type Lesson struct {
	CourseID string
	Number   int
	VideoRef *string
	PDFRef   *string
}

type QuizQuestion struct {
	Question string
	Answer   string
}

type Progress struct {
	AccountEmail string
	CourseID     string
	UnlockedUpTo int
}

type Feedback struct {
	ID        string
	CourseID  string
	Body      string
	CreatedAt time.Time
}
