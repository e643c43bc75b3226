// Package catalog owns the durable job definitions: what should run, on
// which schedule, with what payload. It is the source of truth the broker's
// trigger state is reconciled against.
package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Registered job types. Each type is also the broker queue the job's work
// items flow through, so workers subscribe by type name.
const (
	TypeEmailDeletion        = "EMAIL_DELETION"
	TypeEmailSending         = "EMAIL_SENDING"
	TypeOrderExpiration      = "ORDER_EXPIRATION"
	TypeSteamCountriesUpdate = "STEAM_COUNTRIES_UPDATE"
)

// Types lists every registered job type.
func Types() []string {
	return []string{
		TypeEmailDeletion,
		TypeEmailSending,
		TypeOrderExpiration,
		TypeSteamCountriesUpdate,
	}
}

// KnownType reports whether t is a registered job type.
func KnownType(t string) bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// Job is one declared background job. Its id doubles as the broker trigger
// key, which is what keeps the (type, id) pair mapped to at most one active
// trigger.
type Job struct {
	ID            uuid.UUID
	Name          string
	Type          string
	CronPattern   string
	Payload       json.RawMessage
	Enabled       bool
	RetryAttempts int
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
