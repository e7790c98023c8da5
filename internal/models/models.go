package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account roles. Stored lower-case, compared as a
// type rather than by ad hoc string lists.
type Role string

const (
	RoleStudent   Role = "student"
	RoleTeacher   Role = "teacher"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"

	// RoleAnyAdmin is a requirement sentinel, never a stored role: it is
	// satisfied by any role whose Elevated() is true.
	RoleAnyAdmin Role = "anyAdmin"
)

// Valid reports whether r is a role that can appear on a user record.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// Elevated reports whether r carries administrative privileges. The admin
// role bypasses every role requirement; this is intentional superuser
// behavior, not an oversight.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleModerator
}

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"not null"                 json:"name"`
	Email        string    `gorm:"unique;not null"          json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         Role      `gorm:"not null"                 json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the authenticated identity attached to a request. Always
// derived from the User record at verification time, optionally cached.
type Principal struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// RefreshToken is one active session on one device. The raw verifier is
// only ever sent to the client; the row holds its sha256 digest, so a
// leaked table cannot mint usable credentials.
type RefreshToken struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"               json:"id"`
	UserID       uint       `gorm:"index:idx_refresh_subject;not null" json:"user_id"`
	SubjectType  string     `gorm:"index:idx_refresh_subject;not null" json:"subject_type"`
	Selector     string     `gorm:"uniqueIndex;not null"               json:"-"`
	VerifierHash string     `gorm:"not null"                           json:"-"`
	UserAgent    string     `gorm:"default:unknown"                    json:"user_agent"`
	IPAddress    string     `gorm:"default:unknown"                    json:"ip_address"`
	ExpiresAt    time.Time  `gorm:"index;not null"                     json:"expires_at"`
	Revoked      bool       `gorm:"index;default:false"                json:"revoked"`
	RevokedAt    *time.Time `json:"revoked_at"`
	ReplacedBy   *uuid.UUID `gorm:"type:uuid"                          json:"replaced_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RevokedToken records an access token (by digest, never raw) as unusable
// until its natural expiry.
type RevokedToken struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Digest    string    `gorm:"uniqueIndex;not null"     json:"-"`
	ExpiresAt time.Time `gorm:"index;not null"           json:"expires_at"`
	Reason    string    `gorm:"default:logout"           json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
