package node

import "github.com/roach88/lattice/internal/model"

// Permission is the call contract of the external permission evaluator.
// Policy evaluation internals live outside this module; the orchestrator
// only consumes the two checks.
type Permission interface {
	HasReadPermission(pubKey string, policy model.PermissionPolicy, trustDistance int) bool
	HasWritePermission(pubKey string, policy model.PermissionPolicy, trustDistance int) bool
}

// TrustDistancePermission is the default evaluator: a caller passes when
// the field declares no explicit cap, or when the caller's trust distance
// is within the declared cap. Anything finer-grained is plugged in by the
// embedding process.
type TrustDistancePermission struct{}

func (TrustDistancePermission) HasReadPermission(pubKey string, policy model.PermissionPolicy, trustDistance int) bool {
	return withinTrustDistance(policy, trustDistance)
}

func (TrustDistancePermission) HasWritePermission(pubKey string, policy model.PermissionPolicy, trustDistance int) bool {
	return withinTrustDistance(policy, trustDistance)
}

func withinTrustDistance(policy model.PermissionPolicy, trustDistance int) bool {
	if policy.ExplicitTrustDistance == 0 {
		return true
	}
	return trustDistance <= policy.ExplicitTrustDistance
}

// AllowAll accepts every caller. Test wiring only.
type AllowAll struct{}

func (AllowAll) HasReadPermission(string, model.PermissionPolicy, int) bool  { return true }
func (AllowAll) HasWritePermission(string, model.PermissionPolicy, int) bool { return true }
