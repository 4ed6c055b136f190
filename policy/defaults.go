package policy

import "time"

// Stock action names.
const (
	ActionLogin              = "login"
	ActionPasswordReset      = "password-reset"
	ActionResendVerification = "resend-verification"
)

// DefaultPolicies returns a fresh copy of the stock policy table.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		ActionLogin: {
			MaxAttempts:   5,
			Window:        15 * time.Minute,
			BlockDuration: 30 * time.Minute,
		},
		ActionPasswordReset: {
			MaxAttempts:   3,
			Window:        15 * time.Minute,
			BlockDuration: 30 * time.Minute,
		},
		ActionResendVerification: {
			MaxAttempts:   5,
			Window:        10 * time.Minute,
			BlockDuration: 20 * time.Minute,
		},
	}
}

// Defaults returns a frozen registry holding [DefaultPolicies].
func Defaults() *Registry {
	r, err := FromMap(DefaultPolicies())
	if err != nil {
		panic("policy: invalid default table: " + err.Error())
	}
	return r
}
