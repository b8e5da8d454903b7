package model

import "time"

// Account represents a row in the `accounts` table.  The json tags are
// omitted on purpose: handlers shape their own responses and never echo the
// password hash.
//
// Fields:
//
//	ID           – primary key identifier.
//	Name         – display name; for the University this is printed on certificates.
//	Email        – unique, stored lower-cased.
//	PasswordHash – bcrypt hash of the password.
//	Role         – one of University, Student, Company.
type Account struct {
	ID           uint64    // accounts.id
	Name         string    // accounts.name
	Email        string    // accounts.email
	PasswordHash string    // accounts.password_hash
	Role         Role      // accounts.role
	CreatedAt    time.Time // accounts.created_at
	UpdatedAt    time.Time // accounts.updated_at
}

// Principal is the authenticated actor attached to a request by the JWT
// middleware.  The core trusts it without re-reading the account.
type Principal struct {
	ID   uint64
	Name string
	Role Role
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the raw token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	AccountID uint64     // refresh_tokens.account_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
