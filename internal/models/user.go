package models

import "time"

const (
	RoleCandidate    = "candidate"
	RoleProfessional = "professional"
	RoleAdmin        = "admin"
)

type User struct {
	ID                  int64     `json:"id"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"`
	Role                string    `json:"role"`
	ProviderCustomerRef *string   `json:"provider_customer_ref"`
	PayoutRecipientRef  *string   `json:"payout_recipient_ref"`
	CreatedAt           time.Time `json:"created_at"`
}
