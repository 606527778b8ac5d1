// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress frames byte payloads with a one-byte algorithm tag
// and the uncompressed length, so a reader never has to guess how a
// blob was written. Register bundles exchanged during anti-entropy
// and written by the store's export path use this framing.
//
// Frame layout:
//
//	tag (1 byte) | uncompressed length (uvarint) | body
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the algorithm of a frame body. Values are written to
// disk and to the wire.
type Tag uint8

const (
	None Tag = 0
	LZ4  Tag = 1
	Zstd Tag = 2
)

// MaxFrameSize bounds the declared uncompressed length so a corrupt or
// hostile header cannot force a huge allocation.
const MaxFrameSize = 64 << 20

var errIncompressible = errors.New("compress: data is incompressible")

func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseTag accepts the names produced by Tag.String.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	}
	return 0, fmt.Errorf("compress: unknown algorithm %q", name)
}

// UnmarshalText lets a Tag be set directly from YAML configuration.
func (tag *Tag) UnmarshalText(text []byte) error {
	parsed, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*tag = parsed
	return nil
}

func (tag Tag) MarshalText() ([]byte, error) {
	return []byte(tag.String()), nil
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameSize))
	if err != nil {
		panic("compress: zstd decoder: " + err.Error())
	}
}

// Seal compresses data with the requested algorithm and frames it.
// When the algorithm does not shrink the data the frame falls back to
// None, so the returned frame's tag may differ from the one asked for.
func Seal(data []byte, tag Tag) ([]byte, error) {
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("compress: payload of %d bytes exceeds %d", len(data), MaxFrameSize)
	}
	var body []byte
	var err error
	switch tag {
	case None:
		body = data
	case LZ4:
		body, err = compressLZ4(data)
	case Zstd:
		body, err = compressZstd(data)
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %d", uint8(tag))
	}
	if errors.Is(err, errIncompressible) {
		tag, body, err = None, data, nil
	}
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, 1+binary.MaxVarintLen64+len(body))
	frame = append(frame, byte(tag))
	frame = binary.AppendUvarint(frame, uint64(len(data)))
	return append(frame, body...), nil
}

// Open reverses Seal. The returned slice may alias frame when the body
// was stored uncompressed.
func Open(frame []byte) ([]byte, Tag, error) {
	if len(frame) < 2 {
		return nil, 0, fmt.Errorf("compress: frame of %d bytes is too short", len(frame))
	}
	tag := Tag(frame[0])
	size, n := binary.Uvarint(frame[1:])
	if n <= 0 {
		return nil, tag, fmt.Errorf("compress: malformed length header")
	}
	if size > MaxFrameSize {
		return nil, tag, fmt.Errorf("compress: declared length %d exceeds %d", size, MaxFrameSize)
	}
	body := frame[1+n:]

	var data []byte
	var err error
	switch tag {
	case None:
		if uint64(len(body)) != size {
			return nil, tag, fmt.Errorf("compress: stored body is %d bytes, header says %d", len(body), size)
		}
		data = body
	case LZ4:
		data, err = decompressLZ4(body, int(size))
	case Zstd:
		data, err = decompressZstd(body, int(size))
	default:
		return nil, tag, fmt.Errorf("compress: unsupported algorithm %d", uint8(tag))
	}
	if err != nil {
		return nil, tag, err
	}
	return data, tag, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(body []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(body, destination)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("compress: lz4 produced %d bytes, header says %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(body []byte, size int) ([]byte, error) {
	data, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("compress: zstd: %w", err)
	}
	if len(data) != size {
		return nil, fmt.Errorf("compress: zstd produced %d bytes, header says %d", len(data), size)
	}
	return data, nil
}
