// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registerstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/renameio"
	"github.com/zeebo/blake3"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/register"
)

// maxRecordSize bounds one command record. A command carries at most
// one entry of register.MaxEntrySize bytes plus a policy, so anything
// this large is corruption.
const maxRecordSize = 1 << 20

// digest identifies a command by the blake3 hash of its CBOR encoding.
// It is also the record checksum.
type digest [32]byte

type record struct {
	command register.Command
	digest  digest
}

func encodeCommand(cmd register.Command) (record, []byte, error) {
	payload, err := codec.Marshal(cmd)
	if err != nil {
		return record{}, nil, fmt.Errorf("encoding command: %w", err)
	}
	return record{command: cmd, digest: blake3.Sum256(payload)}, payload, nil
}

func appendRecord(buffer *bytes.Buffer, payload []byte, sum digest) {
	buffer.Write(binary.AppendUvarint(nil, uint64(len(payload))))
	buffer.Write(payload)
	buffer.Write(sum[:])
}

// readLog reads every intact record from path. A torn or corrupt tail
// is cut off the file. A missing file yields no records and
// os.ErrNotExist.
func readLog(path string, logger *slog.Logger) ([]record, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var records []record
	var good int64
	for {
		length, err := binary.ReadUvarint(reader)
		if err == io.EOF {
			return records, nil
		}
		if err != nil || length > maxRecordSize {
			break
		}
		body := make([]byte, int(length)+len(digest{}))
		if _, err := io.ReadFull(reader, body); err != nil {
			break
		}
		payload := body[:length]
		var sum digest
		copy(sum[:], body[length:])
		if blake3.Sum256(payload) != sum {
			break
		}
		var cmd register.Command
		if err := codec.Unmarshal(payload, &cmd); err != nil {
			break
		}
		records = append(records, record{command: cmd, digest: sum})
		good += int64(uvarintLen(length)) + int64(len(body))
	}

	logger.Warn("truncating damaged register log tail",
		"path", path,
		"records", len(records),
		"offset", good,
	)
	if err := file.Truncate(good); err != nil {
		return nil, fmt.Errorf("truncating %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("syncing %s: %w", path, err)
	}
	return records, nil
}

// appendLog appends payloads to path, creating the file if needed, and
// fsyncs before returning.
func appendLog(path string, payloads [][]byte, sums []digest) error {
	var buffer bytes.Buffer
	for i, payload := range payloads {
		appendRecord(&buffer, payload, sums[i])
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(buffer.Bytes()); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// rewriteLog atomically replaces path with the given commands.
func rewriteLog(path string, commands []register.Command) ([]record, error) {
	var buffer bytes.Buffer
	records := make([]record, 0, len(commands))
	for _, cmd := range commands {
		rec, payload, err := encodeCommand(cmd)
		if err != nil {
			return nil, err
		}
		appendRecord(&buffer, payload, rec.digest)
		records = append(records, rec)
	}
	if err := renameio.WriteFile(path, buffer.Bytes(), 0o644); err != nil {
		return nil, err
	}
	return records, nil
}

func uvarintLen(value uint64) int {
	var scratch [binary.MaxVarintLen64]byte
	return binary.PutUvarint(scratch[:], value)
}

func isNotExist(err error) bool { return errors.Is(err, os.ErrNotExist) }
