package domain

import "time"

// OperatorRole enumerates operator permissions.
type OperatorRole string

const (
	OperatorRoleAgent OperatorRole = "AGENT"
	OperatorRoleAdmin OperatorRole = "ADMIN"
)

// Operator is a human allowed to review, approve and send replies.
type Operator struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         OperatorRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
