package domain

import "sort"

// Permission names one action a player may be allowed to take.
type Permission string

const (
	CanCallTruco             Permission = "can_call_truco"
	CanCallRetruco           Permission = "can_call_retruco"
	CanCallValeCuatro        Permission = "can_call_vale_cuatro"
	CanCallEnvido            Permission = "can_call_envido"
	CanCallRealEnvido        Permission = "can_call_real_envido"
	CanCallFaltaEnvido       Permission = "can_call_falta_envido"
	CanCallFlor              Permission = "can_call_flor"
	CanCallContraflor        Permission = "can_call_contraflor"
	CanCallContraflorAlResto Permission = "can_call_contraflor_al_resto"
	CanAccept                Permission = "can_accept"
	CanReject                Permission = "can_reject"
	CanFold                  Permission = "can_fold"
	CanPlayCard              Permission = "can_play_card"
)

// AllPermissions lists every permission a rule set is expected to define.
var AllPermissions = []Permission{
	CanCallTruco, CanCallRetruco, CanCallValeCuatro,
	CanCallEnvido, CanCallRealEnvido, CanCallFaltaEnvido,
	CanCallFlor, CanCallContraflor, CanCallContraflorAlResto,
	CanAccept, CanReject, CanFold, CanPlayCard,
}

var callPermission = map[Call]Permission{
	CallTruco:             CanCallTruco,
	CallRetruco:           CanCallRetruco,
	CallValeCuatro:        CanCallValeCuatro,
	CallEnvido:            CanCallEnvido,
	CallRealEnvido:        CanCallRealEnvido,
	CallFaltaEnvido:       CanCallFaltaEnvido,
	CallFlor:              CanCallFlor,
	CallContraflor:        CanCallContraflor,
	CallContraflorAlResto: CanCallContraflorAlResto,
}

// PermissionFor returns the permission guarding a call.
func PermissionFor(c Call) Permission {
	return callPermission[c]
}

// CallFor returns the call a permission guards, if any.
func CallFor(p Permission) (Call, bool) {
	for c, perm := range callPermission {
		if perm == p {
			return c, true
		}
	}
	return "", false
}

// Known reports whether p is one of AllPermissions.
func (p Permission) Known() bool {
	for _, k := range AllPermissions {
		if k == p {
			return true
		}
	}
	return false
}

// PermissionSet is the evaluated legality of every action for one player.
// Missing entries are false.
type PermissionSet struct {
	Allowed      map[Permission]bool `json:"allowed"`
	EnvidoPoints int                 `json:"envido_points"`
}

// NewPermissionSet returns a set where every action is denied.
func NewPermissionSet() PermissionSet {
	return PermissionSet{Allowed: make(map[Permission]bool, len(AllPermissions))}
}

// Has reports whether p is allowed.
func (s PermissionSet) Has(p Permission) bool {
	return s.Allowed[p]
}

// Set records p as allowed or denied.
func (s *PermissionSet) Set(p Permission, allowed bool) {
	if s.Allowed == nil {
		s.Allowed = make(map[Permission]bool, len(AllPermissions))
	}
	s.Allowed[p] = allowed
}

// List returns the allowed permissions sorted by name.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s.Allowed))
	for p, ok := range s.Allowed {
		if ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Empty reports whether nothing is allowed.
func (s PermissionSet) Empty() bool {
	return len(s.List()) == 0
}

func (s PermissionSet) Clone() PermissionSet {
	out := PermissionSet{Allowed: make(map[Permission]bool, len(s.Allowed)), EnvidoPoints: s.EnvidoPoints}
	for p, ok := range s.Allowed {
		out.Allowed[p] = ok
	}
	return out
}
