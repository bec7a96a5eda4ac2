package domain

import "time"

// User represents an account authenticated through Google.
type User struct {
	ID               string
	GoogleSub        string
	Email            string
	StripeCustomerID *string
	CreatedAt        time.Time
}
