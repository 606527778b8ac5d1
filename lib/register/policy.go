// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"slices"

	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/neterr"
)

// User is either a specific public key or Anyone.
type User struct {
	Anyone bool           `cbor:"1,keyasint,omitempty"`
	Key    keys.PublicKey `cbor:"2,keyasint,omitempty"`
}

// Anyone matches every requester.
var Anyone = User{Anyone: true}

// UserKey returns the User for a public key.
func UserKey(key keys.PublicKey) User { return User{Key: key} }

func (u User) String() string {
	if u.Anyone {
		return "Anyone"
	}
	return u.Key.String()
}

func compareUser(a, b User) int {
	switch {
	case a.Anyone && !b.Anyone:
		return -1
	case !a.Anyone && b.Anyone:
		return 1
	}
	return slices.Compare(a.Key[:], b.Key[:])
}

// Action is an operation subject to the policy.
type Action int

const (
	Read Action = iota
	Write
)

func (a Action) String() string {
	if a == Write {
		return "Write"
	}
	return "Read"
}

// Permissions are the rights granted to one user. Being listed in a
// policy grants read access; Write additionally allows edits.
type Permissions struct {
	Write bool `cbor:"1,keyasint"`
}

// Grant pairs a user with its permissions.
type Grant struct {
	User        User        `cbor:"1,keyasint"`
	Permissions Permissions `cbor:"2,keyasint"`
}

// Policy is the owner plus the per-user grants of a register. Grants
// are kept sorted by user so equal policies encode identically.
type Policy struct {
	Owner  User    `cbor:"1,keyasint"`
	Grants []Grant `cbor:"2,keyasint,omitempty"`
}

// NewPolicy builds a policy from a permission map.
func NewPolicy(owner User, permissions map[User]Permissions) Policy {
	policy := Policy{Owner: owner}
	for user, perms := range permissions {
		policy.Grants = append(policy.Grants, Grant{User: user, Permissions: perms})
	}
	slices.SortFunc(policy.Grants, func(a, b Grant) int { return compareUser(a.User, b.User) })
	return policy
}

// IsPublic reports whether Anyone is granted access.
func (p Policy) IsPublic() bool {
	_, ok := p.Permissions(Anyone)
	return ok
}

// Permissions returns the grant for user, if listed.
func (p Policy) Permissions(user User) (Permissions, bool) {
	for _, grant := range p.Grants {
		if grant.User == user {
			return grant.Permissions, true
		}
	}
	return Permissions{}, false
}

// IsActionAllowed checks whether requester may perform action. The
// owner may do anything. Reads require the requester or Anyone to be
// listed; writes require a Write grant for the requester or Anyone.
func (p Policy) IsActionAllowed(requester User, action Action) error {
	if requester == p.Owner {
		return nil
	}
	own, listed := p.Permissions(requester)
	anyone, public := p.Permissions(Anyone)

	switch action {
	case Read:
		if listed || public {
			return nil
		}
	case Write:
		if (listed && own.Write) || (public && anyone.Write) {
			return nil
		}
	}
	return neterr.E("register.Policy", neterr.AccessDenied, requester.String()+" may not "+action.String(), nil)
}
