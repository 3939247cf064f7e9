// Package account defines users and their optional personalization profile.
package account

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("account: not found")

// User is an authenticated user. Authentication itself happens elsewhere;
// the session cookie carries ID, Email and Name.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Unmetered bool      `json:"is_super_user"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Profile is the optional personalization a user fills in on their page.
// Empty fields are not used.
type Profile struct {
	Age             *int   `json:"age"`
	Gender          string `json:"gender"`
	Personality     string `json:"personality"`
	Occupation      string `json:"occupation"`
	Characteristics string `json:"characteristics"`
}

// Empty reports whether no profile field is set.
func (p Profile) Empty() bool {
	return p.Age == nil && p.Gender == "" && p.Personality == "" &&
		p.Occupation == "" && p.Characteristics == ""
}

// Store persists users and profiles.
type Store interface {
	// EnsureUser creates the user if it does not exist yet. Existing rows
	// are left untouched.
	EnsureUser(ctx context.Context, u User) error

	// User returns ErrNotFound for unknown ids.
	User(ctx context.Context, id string) (*User, error)

	Profile(ctx context.Context, userID string) (Profile, error)
	UpdateProfile(ctx context.Context, userID string, p Profile) error

	// SetUnmetered flips the unmetered flag and returns the new value.
	SetUnmetered(ctx context.Context, userID string, unmetered bool) error
}
