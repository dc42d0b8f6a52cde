package domain

import (
	"strings"
	"time"
)

type PersonalAccessToken struct {
	ID        int64
	TokenHash string
	UserID    int64
	Abilities string
	ExpiresAt *time.Time
}

// HasAbility checks the JSON-ish ability list stored with the token, e.g. ["*"] or ["ledger","admin"].
func (t *PersonalAccessToken) HasAbility(ability string) bool {
	trimmed := strings.Trim(t.Abilities, "[] ")
	if trimmed == "" {
		return false
	}
	for _, a := range strings.Split(trimmed, ",") {
		a = strings.Trim(strings.TrimSpace(a), `"`)
		if a == "*" || a == ability {
			return true
		}
	}
	return false
}

func (t *PersonalAccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
