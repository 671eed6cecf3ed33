package model

import "time"

// User is a registered account in the user database. PasswordHash is a
// salted SHA-256 digest; tokens handed out for a user are opaque and
// tracked by the server, not persisted here.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Moderator    bool      `json:"moderator,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GameSummary is the lightweight listing view of a game.
type GameSummary struct {
	ID            string    `json:"id"`
	Phase         string    `json:"phase"`
	Status        string    `json:"status"`
	Rules         []string  `json:"rules,omitempty"`
	FreePowers    []string  `json:"free_powers,omitempty"`
	Deadline      time.Time `json:"deadline,omitempty"`
	HasPassword   bool      `json:"has_password,omitempty"`
	ObserverLevel string    `json:"observer_level,omitempty"`
}
