package users

import (
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
)

// Identity is a provisioned account. It is never deleted, only deactivated.
type Identity struct {
	ID               string
	Identifier       string
	DisplayName      string
	Email            string
	Phone            string
	CredentialHash   string
	Active           bool
	RotationRequired bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Profile is the input for provisioning a new identity.
type Profile struct {
	FirstName    string          `json:"first_name" validate:"max=100"`
	LastName     string          `json:"last_name" validate:"max=100"`
	DisplayName  string          `json:"display_name" validate:"max=200"`
	Email        string          `json:"email" validate:"required,max=254"`
	Phone        string          `json:"phone" validate:"required,max=32"`
	InitialRoles []rbac.RoleName `json:"initial_roles" validate:"dive,required"`
}

// DeliveryStatus is the outcome of a provisioning notice hand-off.
type DeliveryStatus string

// Delivery statuses.
const (
	Delivered      DeliveryStatus = "delivered"
	DeliveryFailed DeliveryStatus = "delivery_failed"
)

// DeliveryOutcome records a single notification attempt.
type DeliveryOutcome struct {
	Status DeliveryStatus
	Reason string
}

// ProvisionResult is returned once. TemporaryCredential is the only plaintext copy.
type ProvisionResult struct {
	Identity            Identity
	TemporaryCredential string
	Delivery            DeliveryOutcome
	GrantIDs            []string
}
