package models

import "time"

// Plan names stored in the users.plan column.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Plan         string     `json:"plan"`
	FileLimit    int        `json:"file_limit"`
	FilesUsed    int        `json:"files_used"`
	ProExpiresAt *time.Time `json:"pro_expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsPro reports whether the account currently has pro access. A nil
// ProExpiresAt on a pro plan means lifetime access.
func (u *User) IsPro() bool {
	if u.Plan != PlanPro {
		return false
	}
	return u.ProExpiresAt == nil || u.ProExpiresAt.After(time.Now())
}

// Remaining returns how many files the account may still process under its
// current limit. Pro accounts are unmetered; the value is reporting only.
func (u *User) Remaining() int {
	remaining := u.FileLimit - u.FilesUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PlanInfo is the response body for plan checks.
type PlanInfo struct {
	Plan      string `json:"plan"`
	FileLimit int    `json:"fileLimit"`
	FilesUsed int    `json:"filesUsed"`
}

// UploadedFile is one file of a processing batch. It lives only for the
// duration of the request.
type UploadedFile struct {
	// OriginalName is the client-declared filename. Untrusted: it may
	// contain path separators and must be sanitized before any archive or
	// filesystem use.
	OriginalName string
	// DeclaredKind is the client-asserted content type. Advisory only.
	DeclaredKind string
	// DetectedKind is sniffed from the content bytes and is authoritative
	// for validation.
	DetectedKind string
	Content      []byte
}
