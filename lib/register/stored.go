// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package register

import (
	"log/slog"

	"github.com/safenet-project/safenet/lib/neterr"
)

// StoredRegister is the durable view of one address: the command log
// plus, once the Create is known, the register it folds into.
//
// When State is nil the log holds only edits, none of them verified.
// When State is set it equals the Create followed by every logged
// edit applied in log order.
type StoredRegister struct {
	Address Address
	State   *Register
	Log     []Command
}

// NewStored returns an empty StoredRegister for address.
func NewStored(address Address) *StoredRegister {
	return &StoredRegister{Address: address}
}

// Apply runs cmd through the state machine and appends it to the log
// when accepted.
//
//   - Create with no state: the signature is verified, the register is
//     materialised, and every buffered edit is replayed against it.
//     Edits that fail verification under the now-known policy are
//     dropped from the log.
//   - Create with state: rejected with DataExists and not appended.
//   - Edit with state: the signature and the policy are checked and
//     the op applied; failures are returned and nothing is appended.
//   - Edit with no state: appended unverified.
//
// Duplicate edits are appended; applying them again changes nothing.
func (s *StoredRegister) Apply(cmd Command, logger *slog.Logger) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.Dst() != s.Address {
		return neterr.E("register.Apply", neterr.RegisterAddrMismatch,
			"command for "+cmd.Dst().String()+" applied to "+s.Address.String(), nil)
	}

	switch {
	case s.State != nil && cmd.Create != nil:
		return neterr.E("register.Apply", neterr.DataExists, s.Address.String(), nil)

	case s.State != nil:
		if err := applyEdit(s.State, cmd.Edit); err != nil {
			return err
		}

	case cmd.Create != nil:
		register, err := materialise(cmd.Create)
		if err != nil {
			return err
		}
		kept := s.Log[:0:0]
		for _, buffered := range s.Log {
			if err := applyEdit(register, buffered.Edit); err != nil {
				if logger != nil {
					logger.Warn("dropping buffered register edit",
						"address", s.Address.String(),
						"error", err,
					)
				}
				continue
			}
			kept = append(kept, buffered)
		}
		s.Log = kept
		s.State = register
	}

	s.Log = append(s.Log, cmd)
	return nil
}

// Rebuild reconstructs a StoredRegister from a log that was validated
// when it was written. Edits are applied without signature checks;
// any that fail to apply are skipped and reported to logger, which may
// be nil.
func Rebuild(address Address, log []Command, logger *slog.Logger) *StoredRegister {
	stored := &StoredRegister{Address: address, Log: log}
	for _, cmd := range log {
		if cmd.Create != nil && cmd.Dst() == address {
			op := cmd.Create.Op
			stored.State = New(op.Policy.Owner, op.Name, op.Tag, op.Policy)
			break
		}
	}
	if stored.State == nil {
		return stored
	}
	for i, cmd := range log {
		if cmd.Edit == nil {
			continue
		}
		if err := stored.State.ApplyOp(cmd.Edit.Op.Edit); err != nil && logger != nil {
			logger.Warn("skipping logged register edit",
				"address", address.String(),
				"index", i,
				"entry", cmd.Edit.Op.Edit.Hash.String(),
				"error", err,
			)
		}
	}
	return stored
}

func materialise(create *SignedCreate) (*Register, error) {
	if err := create.Auth.Verify(create.Op); err != nil {
		return nil, err
	}
	signer := UserKey(create.Auth.PublicKey)
	if create.Op.Policy.Owner != signer {
		return nil, neterr.E("register.Apply", neterr.InvalidOwner,
			"create signed by "+signer.String()+" for owner "+create.Op.Policy.Owner.String(), nil)
	}
	op := create.Op
	return New(op.Policy.Owner, op.Name, op.Tag, op.Policy), nil
}

func applyEdit(register *Register, edit *SignedEdit) error {
	if edit == nil {
		return nil
	}
	if edit.Op.Address != register.Address() || edit.Op.Edit.Address != register.Address() {
		return neterr.E("register.Apply", neterr.RegisterAddrMismatch,
			"edit for "+edit.Op.Address.String()+" applied to "+register.Address().String(), nil)
	}
	if err := edit.Auth.Verify(edit.Op); err != nil {
		return err
	}
	if err := register.CheckPermissions(Write, UserKey(edit.Auth.PublicKey)); err != nil {
		return err
	}
	return register.ApplyOp(edit.Op.Edit)
}
