package model

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierPremium:
		return t, nil
	}
	return "", errors.Errorf("invalid tier: %s", s)
}

type User struct {
	ID           string    `json:"user_id"`
	Contact      string    `json:"contact"`
	Tier         Tier      `json:"tier"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (t Tier) Valid() bool {
	return t == TierFree || t == TierPremium
}
