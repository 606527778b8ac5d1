// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package safeurl

import (
	"fmt"

	"github.com/safenet-project/safenet/lib/neterr"
)

// ResolutionKind classifies what a URL points at.
type ResolutionKind int

const (
	ResolvesToSafeKey ResolutionKind = iota
	ResolvesToWallet
	ResolvesToFilesContainer
	ResolvesToNrsMapContainer
	ResolvesToPublishedImmutableData
	ResolvesToRegister
	ResolvesToMediaType
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolvesToSafeKey:
		return "SafeKey"
	case ResolvesToWallet:
		return "Wallet"
	case ResolvesToFilesContainer:
		return "FilesContainer"
	case ResolvesToNrsMapContainer:
		return "NrsMapContainer"
	case ResolvesToPublishedImmutableData:
		return "PublishedImmutableData"
	case ResolvesToRegister:
		return "Register"
	case ResolvesToMediaType:
		return "MediaType"
	}
	return fmt.Sprintf("ResolutionKind(%d)", int(k))
}

// Resolution is the typed result of resolving a URL.
type Resolution struct {
	Kind ResolutionKind
	URL  *URL
}

// Resolve decodes raw and classifies it from its content and data
// types. Combinations that no fetch path handles fail with
// InvalidXorUrl.
func Resolve(raw string) (Resolution, error) {
	u, err := Decode(raw)
	if err != nil {
		return Resolution{}, err
	}
	kind, err := classify(u)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Kind: kind, URL: u}, nil
}

func classify(u *URL) (ResolutionKind, error) {
	contentType := u.ContentType()
	switch {
	case contentType.IsMediaType():
		return ResolvesToMediaType, nil
	case contentType == Wallet:
		return ResolvesToWallet, nil
	case contentType == FilesContainer:
		return ResolvesToFilesContainer, nil
	case contentType == NrsMapContainer:
		return ResolvesToNrsMapContainer, nil
	}

	switch u.DataType() {
	case SafeKey:
		return ResolvesToSafeKey, nil
	case PublishedImmutableData:
		return ResolvesToPublishedImmutableData, nil
	case PublicRegister, PrivateRegister:
		return ResolvesToRegister, nil
	}
	return 0, neterr.E("safeurl.Resolve", neterr.InvalidXorUrl,
		fmt.Sprintf("no resolution for raw content stored as %s", u.DataType()), nil)
}
