// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/safenet-project/safenet/lib/keys"
)

const (
	helloMagic    = "SNT1"
	nonceSize     = 32
	helloSize     = len(helloMagic) + len(keys.PublicKey{}) + nonceSize
	authSignature = "safenet/transport/auth/"
)

// ErrHandshake marks a peer that failed to prove its identity.
var ErrHandshake = errors.New("transport: handshake failed")

// handshake runs the mutual challenge on channel and returns the key
// the peer proved it holds. Both sides run it concurrently.
//
//  1. Send magic | our public key | our nonce.
//  2. Read the peer's hello.
//  3. Sign auth domain | peer nonce | peer key and send it.
//  4. Read the peer's signature and check it covers our nonce and key
//     under the key the peer announced.
//
// Binding the signature to the challenger's key stops a response made
// for one peer from being replayed to another.
//
// Writes run on their own goroutine: on synchronous pipes a write
// blocks until the other side reads, and both sides write first.
func handshake(channel io.ReadWriter, keypair *keys.Keypair) (keys.PublicKey, error) {
	var remote keys.PublicKey

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return remote, fmt.Errorf("generating handshake nonce: %w", err)
	}
	local := keypair.Public()
	hello := make([]byte, 0, helloSize)
	hello = append(hello, helloMagic...)
	hello = append(hello, local[:]...)
	hello = append(hello, nonce...)

	signatures := make(chan []byte, 1)
	written := make(chan error, 1)
	go func() {
		if _, err := channel.Write(hello); err != nil {
			written <- fmt.Errorf("sending hello: %w", err)
			return
		}
		signature, ok := <-signatures
		if !ok {
			written <- nil
			return
		}
		if _, err := channel.Write(signature); err != nil {
			written <- fmt.Errorf("sending handshake signature: %w", err)
			return
		}
		written <- nil
	}()

	peerHello := make([]byte, helloSize)
	if _, err := io.ReadFull(channel, peerHello); err != nil {
		close(signatures)
		return remote, fmt.Errorf("reading peer hello: %w", err)
	}
	if string(peerHello[:len(helloMagic)]) != helloMagic {
		close(signatures)
		return remote, fmt.Errorf("%w: unexpected protocol magic %q", ErrHandshake, peerHello[:len(helloMagic)])
	}
	copy(remote[:], peerHello[len(helloMagic):])
	peerNonce := peerHello[len(helloMagic)+len(remote):]

	signature := keypair.Sign(challenge(peerNonce, remote))
	signatures <- signature[:]

	var peerSignature keys.Signature
	if _, err := io.ReadFull(channel, peerSignature[:]); err != nil {
		return remote, fmt.Errorf("reading peer signature: %w", err)
	}
	if err := <-written; err != nil {
		return remote, err
	}
	if !remote.Verify(challenge(nonce, local), peerSignature) {
		return remote, fmt.Errorf("%w: peer %s signature does not verify", ErrHandshake, remote.Name())
	}
	return remote, nil
}

func challenge(nonce []byte, challenger keys.PublicKey) []byte {
	message := make([]byte, 0, len(authSignature)+len(nonce)+len(challenger))
	message = append(message, authSignature...)
	message = append(message, nonce...)
	return append(message, challenger[:]...)
}
