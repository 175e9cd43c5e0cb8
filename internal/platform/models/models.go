package models

import "time"

// Team is a tenant. Slug is unique and doubles as the tenant subdomain.
type Team struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Logo           *string   `json:"logo"`
	PublicKey      *string   `json:"publicKey"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	OrganizationID string    `json:"organizationId"`
}
