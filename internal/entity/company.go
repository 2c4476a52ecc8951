package entity

import (
	"time"

	"github.com/google/uuid"
)

// Company is an SEC registrant we store metadata for.
type Company struct {
	ID        uuid.UUID
	CIK       string // zero-padded 10-digit central index key
	Ticker    string
	Name      string
	Exchange  string
	Tracked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
