// Package authz gates custody mutations on caller roles.
//
// Role values are caller-declared and advisory unless the server is
// configured with a RoleBinder, in which case actor and role come from a
// verified bearer token issued by an external credential system. Binding
// strength is deployment policy; the gate itself only checks membership.
package authz

import (
	"fmt"
	"strings"
)

// Roles recognised by the custody lifecycle.
const (
	RoleForensicTechnician = "ForensicTechnician"
	RoleEvidenceManager    = "EvidenceManager"
)

// DeniedError reports a role outside the allowed set for an operation.
type DeniedError struct {
	Role    string
	Allowed []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("role %q is not permitted, allowed roles: %s",
		e.Role, strings.Join(e.Allowed, ", "))
}

// Require returns nil when role is in the allowed set and a *DeniedError
// otherwise. An empty role is always denied.
func Require(role string, allowed ...string) error {
	for _, a := range allowed {
		if role == a {
			return nil
		}
	}
	return &DeniedError{Role: role, Allowed: allowed}
}
