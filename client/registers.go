// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"

	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/register"
	"github.com/safenet-project/safenet/lib/safeurl"
	"github.com/safenet-project/safenet/lib/xorname"
	"github.com/safenet-project/safenet/protocol"
)

// Send submits a signed register command and waits for the section's
// acknowledgement.
func (c *Client) Send(ctx context.Context, cmd register.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	reply, err := c.exchange(ctx, cmd.Dst().Name, protocol.Payload{Kind: protocol.KindCmd, Cmd: &cmd})
	if err != nil {
		return err
	}
	if reply.Kind != protocol.KindAck {
		return neterr.E("client.Send", neterr.InvalidMsgReceived, "expected ack, got "+reply.Kind.String(), nil)
	}
	return nil
}

// Query signs query and returns the section's response.
func (c *Client) Query(ctx context.Context, query register.Query) (register.QueryResponse, error) {
	signed, err := protocol.SignQuery(c.keypair, query)
	if err != nil {
		return register.QueryResponse{}, err
	}
	reply, err := c.exchange(ctx, query.Address.Name, protocol.Payload{Kind: protocol.KindQuery, Query: &signed})
	if err != nil {
		return register.QueryResponse{}, err
	}
	if reply.Kind != protocol.KindResponse {
		return register.QueryResponse{}, neterr.E("client.Query", neterr.InvalidMsgReceived, "expected response, got "+reply.Kind.String(), nil)
	}
	return *reply.Response, nil
}

// CreateRegister creates a register owned by the client. A nil
// permissions map makes a private register only the owner can use.
func (c *Client) CreateRegister(ctx context.Context, name xorname.Name, tag uint64, permissions map[register.User]register.Permissions) (register.Address, error) {
	policy := register.NewPolicy(register.UserKey(c.keypair.Public()), permissions)
	cmd, err := register.NewCreate(c.keypair, name, tag, policy)
	if err != nil {
		return register.Address{}, err
	}
	if err := c.Send(ctx, cmd); err != nil {
		return register.Address{}, err
	}
	return cmd.Dst(), nil
}

// GetRegister fetches a full replica of the register at address.
func (c *Client) GetRegister(ctx context.Context, address register.Address) (*register.Register, error) {
	response, err := c.Query(ctx, register.Query{Kind: register.GetRegister, Address: address})
	if err != nil {
		return nil, err
	}
	if response.Register == nil {
		return nil, neterr.E("client.GetRegister", neterr.InvalidMsgReceived, "response without a register", nil)
	}
	return register.FromSnapshot(register.UserKey(c.keypair.Public()), *response.Register)
}

// WriteRegister writes value on top of children and returns the new
// entry's hash. Nil children writes over every current head, merging
// concurrent branches.
func (c *Client) WriteRegister(ctx context.Context, address register.Address, value []byte, children []register.EntryHash) (register.EntryHash, error) {
	replica, err := c.GetRegister(ctx, address)
	if err != nil {
		return register.EntryHash{}, err
	}
	if err := replica.CheckPermissions(register.Write, register.UserKey(c.keypair.Public())); err != nil {
		return register.EntryHash{}, err
	}
	if children == nil {
		for _, head := range replica.Read() {
			children = append(children, head.Hash)
		}
	}
	hash, op, err := replica.Write(value, children)
	if err != nil {
		return register.EntryHash{}, err
	}
	cmd, err := register.NewEdit(c.keypair, op)
	if err != nil {
		return register.EntryHash{}, err
	}
	if err := c.Send(ctx, cmd); err != nil {
		return register.EntryHash{}, err
	}
	return hash, nil
}

// ReadRegister returns the register's current heads.
func (c *Client) ReadRegister(ctx context.Context, address register.Address) ([]register.Entry, error) {
	response, err := c.Query(ctx, register.Query{Kind: register.ReadRegister, Address: address})
	if err != nil {
		return nil, err
	}
	return response.Entries, nil
}

// GetEntry returns one entry's value.
func (c *Client) GetEntry(ctx context.Context, address register.Address, hash register.EntryHash) ([]byte, error) {
	response, err := c.Query(ctx, register.Query{Kind: register.GetEntry, Address: address, Hash: hash})
	if err != nil {
		return nil, err
	}
	return response.Entry, nil
}

// RegisterURL renders the safe:// URL of a register.
func RegisterURL(address register.Address, private bool, base safeurl.Base) (string, error) {
	dataType := safeurl.PublicRegister
	if private {
		dataType = safeurl.PrivateRegister
	}
	u, err := safeurl.New(address.Name, address.Tag, dataType, safeurl.Raw)
	if err != nil {
		return "", err
	}
	return safeurl.Encode(u, base)
}

// RegisterAddress resolves a safe:// URL to the register it names.
func RegisterAddress(raw string) (register.Address, error) {
	resolution, err := safeurl.Resolve(raw)
	if err != nil {
		return register.Address{}, err
	}
	if resolution.Kind != safeurl.ResolvesToRegister {
		return register.Address{}, neterr.E("client.RegisterAddress", neterr.InvalidXorUrl,
			"URL resolves to "+resolution.Kind.String()+", not a register", nil)
	}
	u := resolution.URL
	return register.Address{Name: u.Name(), Tag: u.TypeTag()}, nil
}
