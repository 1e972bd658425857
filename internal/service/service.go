// Package service holds the business rules behind the REST and gRPC
// transports: access scoping, validation and the delivery lifecycle.
// Repositories report missing rows as nil; services turn that into
// apperrors.NotFound.
package service

import (
	"letDrone/internal/apperrors"
	"letDrone/internal/policy"
)

// Page is a limit/offset window. Zero values use the repository defaults.
type Page struct {
	Limit  int
	Offset int
}

// authorize checks the policy. A caller who would be allowed if the row were
// theirs gets NotFound, so rows outside their scope stay invisible.
func authorize(a *policy.Actor, res policy.Resource, action policy.Action, owned bool, what string) error {
	if policy.Allowed(a, res, action, owned) {
		return nil
	}
	if !owned && policy.Allowed(a, res, action, true) {
		return apperrors.NotFound(what)
	}
	return policy.Check(a, res, action, owned)
}

func internalErr(op string, err error) error {
	return apperrors.Internal(op, err)
}
