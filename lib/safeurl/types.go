// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package safeurl

import (
	"fmt"

	"github.com/multiformats/go-multibase"

	"github.com/safenet-project/safenet/lib/neterr"
)

// Base selects the alphabet of the URL body. Its value is the multibase
// prefix character written ahead of the body.
type Base multibase.Encoding

const (
	// Base32z has no constant in go-multibase; 'h' is its registered
	// prefix in the multibase table.
	Base32z = Base('h')
	Base32  = Base(multibase.Base32)
	Base64  = Base(multibase.Base64)
)

// DefaultBase is used by URL.String.
const DefaultBase = Base32z

// ParseBase maps "base32z", "base32" or "base64" to a Base.
func ParseBase(name string) (Base, error) {
	for _, base := range []Base{Base32z, Base32, Base64} {
		if base.String() == name {
			return base, nil
		}
	}
	return 0, neterr.E("safeurl.ParseBase", neterr.InvalidInput,
		fmt.Sprintf("unsupported base encoding %q, supported values are base32z, base32 and base64", name), nil)
}

func (b Base) String() string {
	if b == Base32z {
		return "base32z"
	}
	if name, ok := multibase.EncodingToStr[multibase.Encoding(b)]; ok {
		return name
	}
	return fmt.Sprintf("Base(%q)", rune(b))
}

func (b Base) prefix() byte { return byte(b) }

// DataType identifies the storage primitive holding the content.
type DataType uint8

const (
	SafeKey DataType = iota
	PublishedImmutableData
	UnpublishedImmutableData
	SeqMutableData
	UnseqMutableData
	PublishedSeqAppendOnlyData
	PublishedUnseqAppendOnlyData
	UnpublishedSeqAppendOnlyData
	UnpublishedUnseqAppendOnlyData
	PublicRegister
	PrivateRegister
)

var dataTypeNames = [...]string{
	SafeKey:                        "SafeKey",
	PublishedImmutableData:         "PublishedImmutableData",
	UnpublishedImmutableData:       "UnpublishedImmutableData",
	SeqMutableData:                 "SeqMutableData",
	UnseqMutableData:               "UnseqMutableData",
	PublishedSeqAppendOnlyData:     "PublishedSeqAppendOnlyData",
	PublishedUnseqAppendOnlyData:   "PublishedUnseqAppendOnlyData",
	UnpublishedSeqAppendOnlyData:   "UnpublishedSeqAppendOnlyData",
	UnpublishedUnseqAppendOnlyData: "UnpublishedUnseqAppendOnlyData",
	PublicRegister:                 "PublicRegister",
	PrivateRegister:                "PrivateRegister",
}

// Valid reports whether d is one of the enumerated data types.
func (d DataType) Valid() bool { return int(d) < len(dataTypeNames) }

func (d DataType) String() string {
	if !d.Valid() {
		return fmt.Sprintf("DataType(%d)", uint8(d))
	}
	return dataTypeNames[d]
}

// Reserved content type codes. Codes from mediaTypeBase upwards are
// assigned to media types by the registry below.
const (
	rawCode             uint16 = 0x0000
	walletCode          uint16 = 0x0001
	filesContainerCode  uint16 = 0x0002
	nrsMapContainerCode uint16 = 0x0003
	mediaTypeBase       uint16 = 0x0200
)

// ContentType describes how the addressed content should be treated.
// It is either one of the reserved types or a registered media type.
type ContentType struct {
	code      uint16
	mediaType string
}

var (
	Raw             = ContentType{code: rawCode}
	Wallet          = ContentType{code: walletCode}
	FilesContainer  = ContentType{code: filesContainerCode}
	NrsMapContainer = ContentType{code: nrsMapContainerCode}
)

// MediaType returns the content type for a MIME media type. Encoding a
// URL with an unregistered media type fails with InvalidMediaType.
func MediaType(mediaType string) ContentType {
	return ContentType{code: mediaTypeCodes[mediaType], mediaType: mediaType}
}

// IsMediaTypeSupported reports whether mediaType has a registered code.
func IsMediaTypeSupported(mediaType string) bool {
	_, ok := mediaTypeCodes[mediaType]
	return ok
}

// IsMediaType reports whether c is a media type rather than one of the
// reserved content types.
func (c ContentType) IsMediaType() bool { return c.mediaType != "" }

// Media returns the media type string, or "" for reserved types.
func (c ContentType) Media() string { return c.mediaType }

// Code returns the 16-bit wire code.
func (c ContentType) Code() (uint16, error) {
	if c.mediaType == "" {
		return c.code, nil
	}
	code, ok := mediaTypeCodes[c.mediaType]
	if !ok {
		return 0, neterr.E("safeurl.ContentType", neterr.InvalidMediaType,
			fmt.Sprintf("media type %q not supported, use Raw as the content type for this content", c.mediaType), nil)
	}
	return code, nil
}

func (c ContentType) String() string {
	switch {
	case c.mediaType != "":
		return "MediaType(" + c.mediaType + ")"
	case c.code == rawCode:
		return "Raw"
	case c.code == walletCode:
		return "Wallet"
	case c.code == filesContainerCode:
		return "FilesContainer"
	case c.code == nrsMapContainerCode:
		return "NrsMapContainer"
	}
	return fmt.Sprintf("ContentType(%d)", c.code)
}

func contentTypeFromCode(code uint16) (ContentType, bool) {
	switch code {
	case rawCode, walletCode, filesContainerCode, nrsMapContainerCode:
		return ContentType{code: code}, true
	}
	mediaType, ok := mediaTypeNames[code]
	if !ok {
		return ContentType{}, false
	}
	return ContentType{code: code, mediaType: mediaType}, true
}

// Appending to this list is compatible. Reordering it changes the
// code of every media type after the change.
var registeredMediaTypes = []string{
	"text/plain",
	"text/html",
	"text/css",
	"text/csv",
	"text/markdown",
	"text/javascript",
	"application/json",
	"application/xml",
	"application/pdf",
	"application/zip",
	"application/gzip",
	"application/octet-stream",
	"application/wasm",
	"application/x-tar",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"image/svg+xml",
	"image/x-icon",
	"audio/mpeg",
	"audio/ogg",
	"audio/wav",
	"video/mp4",
	"video/webm",
	"video/ogg",
	"font/woff",
	"font/woff2",
}

var (
	mediaTypeCodes = make(map[string]uint16, len(registeredMediaTypes))
	mediaTypeNames = make(map[uint16]string, len(registeredMediaTypes))
)

func init() {
	for i, mediaType := range registeredMediaTypes {
		code := mediaTypeBase + uint16(i)
		mediaTypeCodes[mediaType] = code
		mediaTypeNames[code] = mediaType
	}
}
