package models

import "time"

// PendingVerification holds an issued, not yet confirmed email verification code.
// There is at most one per email.
type PendingVerification struct {
	Email     string    `json:"email" bson:"email"`
	Code      string    `json:"code" bson:"code"`
	Attempts  int       `json:"attempts" bson:"attempts"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
}

// Expired reports whether the entry is no longer redeemable at now
func (p PendingVerification) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
