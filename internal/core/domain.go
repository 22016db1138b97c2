package core

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

const (
	RoleAdmin  Role = "ADMIN"
	RoleViewer Role = "VIEWER"
)

type (
	Role string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// User is a ledger account. Password holds whatever the configured
	// password hasher produced, never a value meant for display.
	User struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     Role   `json:"role"`
	}

	// Session is an authenticated identity with the credential stripped.
	Session struct {
		ID        string    `json:"id"`
		Username  string    `json:"username"`
		Role      Role      `json:"role"`
		IssuedAt  time.Time `json:"issuedAt"`
		ExpiresAt time.Time `json:"expiresAt"`
	}

	Project struct {
		ID                        string      `json:"id"`
		Name                      string      `json:"name"`
		StartDate                 Date        `json:"startDate"`
		EndDate                   Date        `json:"endDate"`
		BudgetAmount              Money       `json:"budgetAmount"`
		AdvanceAmount             Money       `json:"advanceAmount"`
		ExpenseAmount             Money       `json:"expenseAmount"`
		BalanceAmount             Money       `json:"balanceAmount"`
		IsSettled                 bool        `json:"isSettled"`
		BillSubmissionDate        Date        `json:"billSubmissionDate"`
		SOPROIEmailSubmissionDate Date        `json:"sopRoiEmailSubmissionDate"`
		BillTopSheetImage         *Attachment `json:"billTopSheetImage,omitempty"`
		BudgetCopyAttachment      *Attachment `json:"budgetCopyAttachment,omitempty"`
		CreatedAt                 time.Time   `json:"createdAt"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyName        = errors.New("empty project name")
	ErrNameTooLong      = errors.New("project name too long (max 120 characters)")
	ErrMissingStartDate = errors.New("start date is required")
	ErrEndBeforeStart   = errors.New("end date must not be before start date")
	ErrInvalidRole      = errors.New("invalid role")
)

// ParseRole accepts any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleViewer
}

func (r Role) String() string {
	return string(r)
}

// Session returns the identity part of the user, without the credential.
func (u User) Session(id string, issuedAt time.Time, ttl time.Duration) Session {
	return Session{
		ID:        id,
		Username:  u.Username,
		Role:      u.Role,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	}
}

// IsAdmin reports whether the session belongs to an administrator.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// UsernameKey is the case-folded form every store compares usernames by.
func UsernameKey(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

// SameUsername compares usernames the way the ledger does: case-insensitively.
func SameUsername(a, b string) bool {
	return UsernameKey(a) == UsernameKey(b)
}
