package model

import "time"

// BookingLink grants time-boxed, use-limited public booking access to one shop.
type BookingLink struct {
	ID          string
	ShopID      string
	Token       string
	IsActive    bool
	ExpiresAt   time.Time
	MaxUses     *int
	CurrentUses int
	CreatedAt   time.Time
}

func (l BookingLink) Valid(now time.Time) bool {
	if !l.IsActive || !now.Before(l.ExpiresAt) {
		return false
	}
	return l.MaxUses == nil || l.CurrentUses < *l.MaxUses
}
