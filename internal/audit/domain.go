package audit

import "time"

// Actions recorded by the access-control engine.
const (
	ActionAccountCreated     = "account_created"
	ActionAccountDeactivated = "account_deactivated"
	ActionCredentialRotated  = "credential_rotated"
	ActionProvisioningNotice = "provisioning_notice"
	ActionRoleGranted        = "role_granted"
	ActionRoleRevoked        = "role_revoked"
	ActionRoleExpired        = "role_expired"
	ActionAccessDenied       = "access_denied"
	ActionAccessGranted      = "access_granted"
)

// Outcomes recorded on entries.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
)

// Entry is an immutable record of a security-relevant decision.
type Entry struct {
	ID      string
	Actor   string
	Action  string
	Target  string
	Outcome string
	Reason  string
	Meta    map[string]string
	At      time.Time
}

// Filter narrows audit reads. Zero values are ignored.
type Filter struct {
	Actor  string
	Action string
	Target string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
