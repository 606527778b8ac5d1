// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package section

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/tidwall/jsonc"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/xorname"
)

// WriteFile atomically replaces path with the CBOR encoding of t.
func (t *Tree) WriteFile(path string) error {
	data, err := codec.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding section tree: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing section tree %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a tree written by WriteFile.
func ReadFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tree := &Tree{}
	if err := codec.Unmarshal(data, tree); err != nil {
		return nil, fmt.Errorf("decoding section tree %s: %w", path, err)
	}
	return tree, nil
}

// Contacts is the network contacts file handed to new nodes and
// clients: the genesis key and a few peers to bootstrap from.
//
//	{
//	    // network genesis key
//	    "genesis_key": "5e1c...",
//	    "peers": [
//	        {"name": "9a0b...", "addr": "10.0.0.2:12000"},
//	    ],
//	}
type Contacts struct {
	GenesisKey keys.PublicKey
	Peers      []Member
}

type contactsFile struct {
	GenesisKey string        `json:"genesis_key"`
	Peers      []contactPeer `json:"peers"`
}

type contactPeer struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

// ParseContacts parses a JSON-with-comments contacts document.
func ParseContacts(data []byte) (Contacts, error) {
	var raw contactsFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return Contacts{}, fmt.Errorf("parsing contacts: %w", err)
	}
	genesis, err := keys.ParsePublicKey(raw.GenesisKey)
	if err != nil {
		return Contacts{}, fmt.Errorf("contacts genesis_key: %w", err)
	}
	contacts := Contacts{GenesisKey: genesis}
	for i, peer := range raw.Peers {
		name, err := xorname.Parse(peer.Name)
		if err != nil {
			return Contacts{}, fmt.Errorf("contacts peer %d: %w", i, err)
		}
		if peer.Addr == "" {
			return Contacts{}, fmt.Errorf("contacts peer %d: addr is empty", i)
		}
		contacts.Peers = append(contacts.Peers, Member{Name: name, Addr: peer.Addr})
	}
	return contacts, nil
}

// ReadContacts reads and parses a contacts file.
func ReadContacts(path string) (Contacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Contacts{}, fmt.Errorf("reading %s: %w", path, err)
	}
	contacts, err := ParseContacts(data)
	if err != nil {
		return Contacts{}, fmt.Errorf("%s: %w", path, err)
	}
	return contacts, nil
}

// WriteContacts writes contacts as indented JSON, which ReadContacts
// accepts.
func WriteContacts(path string, contacts Contacts) error {
	raw := contactsFile{GenesisKey: contacts.GenesisKey.Hex(), Peers: []contactPeer{}}
	for _, peer := range contacts.Peers {
		raw.Peers = append(raw.Peers, contactPeer{Name: peer.Name.Hex(), Addr: peer.Addr})
	}
	data, err := json.MarshalIndent(raw, "", "    ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, append(data, '\n'), 0o644)
}
