// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package safeurl

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/eknkc/basex"

	"github.com/safenet-project/safenet/lib/neterr"
	"github.com/safenet-project/safenet/lib/xorname"
)

const (
	// Scheme is the URL scheme handled by this package.
	Scheme = "safe"

	// EncodingVersion is the only header version this package reads
	// or writes.
	EncodingVersion = 1

	// NrsMapTypeTag is the type tag of NRS map containers.
	NrsMapTypeTag uint64 = 1500

	nameOffset = 4
	tagOffset  = nameOffset + xorname.Len

	// MinHeaderLen and MaxHeaderLen bound a decoded body: a zero tag
	// contributes no bytes, a full 64-bit tag contributes eight.
	MinHeaderLen = tagOffset
	MaxHeaderLen = tagOffset + 8

	versionParam = "v"
)

var alphabets = map[Base]*basex.Encoding{
	Base32z: mustAlphabet("ybndrfg8ejkmcpqxot1uwisza345h769"),
	Base32:  mustAlphabet("abcdefghijklmnopqrstuvwxyz234567"),
	Base64:  mustAlphabet("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"),
}

func mustAlphabet(alphabet string) *basex.Encoding {
	encoding, err := basex.NewEncoding(alphabet)
	if err != nil {
		panic("safeurl: invalid alphabet: " + err.Error())
	}
	return encoding
}

// URL is a decoded safe:// URL. The header fields (name, type tag,
// data type, content type) identify the content; path, sub-names,
// content version and query parameters only change how it renders.
type URL struct {
	name        xorname.Name
	typeTag     uint64
	dataType    DataType
	contentType ContentType

	subNames       []string
	path           string
	contentVersion uint64
	hasVersion     bool
	queryParams    []string
}

// New builds a URL for the given content. It fails with
// InvalidMediaType when contentType names an unregistered media type
// and with InvalidInput for an unknown data type.
func New(name xorname.Name, typeTag uint64, dataType DataType, contentType ContentType) (*URL, error) {
	if _, err := contentType.Code(); err != nil {
		return nil, err
	}
	if !dataType.Valid() {
		return nil, neterr.E("safeurl.New", neterr.InvalidInput, dataType.String(), nil)
	}
	return &URL{
		name:        name,
		typeTag:     typeTag,
		dataType:    dataType,
		contentType: contentType,
	}, nil
}

// Encode renders u with the given base. It is a convenience for
// u.ToBase(base).
func Encode(u *URL, base Base) (string, error) {
	return u.ToBase(base)
}

func (u *URL) EncodingVersion() uint64 { return EncodingVersion }
func (u *URL) Name() xorname.Name { return u.name }
func (u *URL) TypeTag() uint64 { return u.typeTag }
func (u *URL) DataType() DataType { return u.dataType }
func (u *URL) ContentType() ContentType { return u.contentType }
func (u *URL) Path() string { return u.path }
func (u *URL) SubNames() []string { return append([]string(nil), u.subNames...) }
func (u *URL) QueryParams() []string { return append([]string(nil), u.queryParams...) }
func (u *URL) ContentVersion() (uint64, bool) { return u.contentVersion, u.hasVersion }

// SetPath replaces the path. A non-empty path without a leading slash
// gets one.
func (u *URL) SetPath(path string) error {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if err := validatePath(path); err != nil {
		return err
	}
	u.path = path
	return nil
}

// SetSubNames replaces the sub-names rendered before the body.
func (u *URL) SetSubNames(subNames []string) error {
	if err := validateHost(subNames, ""); err != nil {
		return err
	}
	u.subNames = nilIfEmpty(subNames)
	return nil
}

// SetContentVersion sets the content version carried by "v".
func (u *URL) SetContentVersion(version uint64) {
	u.contentVersion = version
	u.hasVersion = true
}

// ClearContentVersion removes the content version.
func (u *URL) ClearContentVersion() {
	u.contentVersion = 0
	u.hasVersion = false
}

// SetQueryParams replaces the query parameters. Each entry is a raw
// "key=value" (or bare "key") string. A "v" parameter is moved into
// the content version.
func (u *URL) SetQueryParams(params []string) error {
	version, hasVersion, rest, err := splitVersion(params)
	if err != nil {
		return err
	}
	if hasVersion {
		u.contentVersion, u.hasVersion = version, true
	}
	u.queryParams = rest
	return nil
}

// QueryKeyFirst returns the value of the first parameter named key.
func (u *URL) QueryKeyFirst(key string) (string, bool) {
	for _, param := range u.queryParams {
		if k, v := splitParam(param); k == key {
			return v, true
		}
	}
	return "", false
}

// QueryKeyLast returns the value of the last parameter named key.
func (u *URL) QueryKeyLast(key string) (string, bool) {
	for i := len(u.queryParams) - 1; i >= 0; i-- {
		if k, v := splitParam(u.queryParams[i]); k == key {
			return v, true
		}
	}
	return "", false
}

// Header serialises the fixed binary header.
func (u *URL) Header() ([]byte, error) {
	contentCode, err := u.contentType.Code()
	if err != nil {
		return nil, err
	}
	header := make([]byte, 0, MaxHeaderLen)
	header = append(header, EncodingVersion)
	header = binary.BigEndian.AppendUint16(header, contentCode)
	header = append(header, byte(u.dataType))
	header = append(header, u.name[:]...)
	var tag [8]byte
	binary.BigEndian.PutUint64(tag[:], u.typeTag)
	header = append(header, tag[bits.LeadingZeros64(u.typeTag)/8:]...)
	return header, nil
}

// ToBase renders the URL with the given body alphabet.
func (u *URL) ToBase(base Base) (string, error) {
	alphabet, ok := alphabets[base]
	if !ok {
		return "", neterr.E("safeurl.Encode", neterr.InvalidInput, fmt.Sprintf("unsupported base %d", base), nil)
	}
	header, err := u.Header()
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString(Scheme + "://")
	for _, subName := range u.subNames {
		builder.WriteString(subName)
		builder.WriteByte('.')
	}
	builder.WriteByte(base.prefix())
	builder.WriteString(escapeBody(alphabet.Encode(header)))
	builder.WriteString(u.path)

	separator := byte('?')
	if u.hasVersion {
		builder.WriteByte(separator)
		builder.WriteString(versionParam + "=" + strconv.FormatUint(u.contentVersion, 10))
		separator = '&'
	}
	for _, param := range u.queryParams {
		builder.WriteByte(separator)
		builder.WriteString(param)
		separator = '&'
	}
	return builder.String(), nil
}

// String renders the URL with DefaultBase. An unencodable URL renders
// as an empty string.
func (u *URL) String() string {
	rendered, err := u.ToBase(DefaultBase)
	if err != nil {
		return ""
	}
	return rendered
}

// MarshalText implements encoding.TextMarshaler using DefaultBase.
func (u *URL) MarshalText() ([]byte, error) {
	rendered, err := u.ToBase(DefaultBase)
	if err != nil {
		return nil, err
	}
	return []byte(rendered), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *URL) UnmarshalText(text []byte) error {
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	*u = *decoded
	return nil
}

// Decode parses a safe:// URL.
func Decode(raw string) (*URL, error) {
	parts, err := splitURL(raw)
	if err != nil {
		return nil, err
	}

	if parts.body == "" {
		return nil, neterr.E("safeurl.Decode", neterr.InvalidXorUrl, "missing encoded body", nil)
	}
	alphabet, ok := alphabets[Base(parts.body[0])]
	if !ok {
		return nil, neterr.E("safeurl.Decode", neterr.InvalidXorUrl,
			fmt.Sprintf("unknown multibase prefix %q", parts.body[0]), nil)
	}
	header, err := alphabet.Decode(unescapeBody(parts.body[1:]))
	if err != nil {
		return nil, neterr.E("safeurl.Decode", neterr.InvalidXorUrl, "failed to decode body", err)
	}

	u, err := decodeHeader(header)
	if err != nil {
		return nil, err
	}
	u.subNames = parts.subNames
	u.path = parts.path
	u.contentVersion, u.hasVersion = parts.version, parts.hasVersion
	u.queryParams = parts.query
	return u, nil
}

func decodeHeader(header []byte) (*URL, error) {
	if len(header) < MinHeaderLen {
		return nil, neterr.E("safeurl.Decode", neterr.InvalidXorUrl,
			fmt.Sprintf("encoded body too short: %d bytes", len(header)), nil)
	}
	if len(header) > MaxHeaderLen {
		return nil, neterr.E("safeurl.Decode", neterr.InvalidXorUrl,
			fmt.Sprintf("encoded body too long: %d bytes", len(header)), nil)
	}
	if header[0] != EncodingVersion {
		return nil, neterr.E("safeurl.Decode", neterr.InvalidXorUrl,
			fmt.Sprintf("unsupported encoding version %d", header[0]), nil)
	}

	contentCode := binary.BigEndian.Uint16(header[1:3])
	contentType, ok := contentTypeFromCode(contentCode)
	if !ok {
		return nil, neterr.E("safeurl.Decode", neterr.InvalidXorUrl,
			fmt.Sprintf("invalid content type %d", contentCode), nil)
	}

	dataType := DataType(header[3])
	if !dataType.Valid() {
		return nil, neterr.E("safeurl.Decode", neterr.InvalidXorUrl,
			fmt.Sprintf("invalid data type %d", header[3]), nil)
	}

	u := &URL{dataType: dataType, contentType: contentType}
	copy(u.name[:], header[nameOffset:tagOffset])

	var tag [8]byte
	copy(tag[8-(len(header)-tagOffset):], header[tagOffset:])
	u.typeTag = binary.BigEndian.Uint64(tag[:])
	return u, nil
}

// The base64 alphabet includes '/', which would end the authority.
// It is percent-encoded in the rendered body.
func escapeBody(body string) string {
	return strings.ReplaceAll(body, "/", "%2F")
}

func unescapeBody(body string) string {
	body = strings.ReplaceAll(body, "%2F", "/")
	return strings.ReplaceAll(body, "%2f", "/")
}

func nilIfEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}
