// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registerstore

import (
	"context"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/compress"
	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
)

// bundle is the CBOR body of a compressed replica bundle.
type bundle struct {
	Logs []ReplicaLog `cbor:"1,keyasint"`
}

// EncodeBundle serialises logs and compresses them with tag.
func EncodeBundle(logs []ReplicaLog, tag compress.Tag) ([]byte, error) {
	body, err := codec.Marshal(bundle{Logs: logs})
	if err != nil {
		return nil, neterr.E("registerstore.EncodeBundle", neterr.Serialisation, "", err)
	}
	frame, err := compress.Seal(body, tag)
	if err != nil {
		return nil, neterr.E("registerstore.EncodeBundle", neterr.Serialisation, "", err)
	}
	return frame, nil
}

// DecodeBundle reverses EncodeBundle.
func DecodeBundle(data []byte) ([]ReplicaLog, error) {
	body, _, err := compress.Open(data)
	if err != nil {
		return nil, neterr.E("registerstore.DecodeBundle", neterr.Serialisation, "", err)
	}
	var decoded bundle
	if err := codec.Unmarshal(body, &decoded); err != nil {
		return nil, neterr.E("registerstore.DecodeBundle", neterr.Serialisation, "", err)
	}
	return decoded.Logs, nil
}

// ExportBundle exports the logs matching prefix as one compressed
// bundle, using the store's configured compression.
func (s *Store) ExportBundle(ctx context.Context, prefix xorname.Prefix) ([]byte, int, error) {
	logs, err := s.Export(ctx, prefix)
	if err != nil {
		return nil, 0, err
	}
	data, err := EncodeBundle(logs, s.compression)
	if err != nil {
		return nil, 0, err
	}
	return data, len(logs), nil
}

// ImportBundle applies every log in a bundle through Update and
// returns how many logs it held.
func (s *Store) ImportBundle(ctx context.Context, data []byte) (int, error) {
	logs, err := DecodeBundle(data)
	if err != nil {
		return 0, err
	}
	for _, replica := range logs {
		if err := s.Update(ctx, replica); err != nil {
			return 0, err
		}
	}
	return len(logs), nil
}
