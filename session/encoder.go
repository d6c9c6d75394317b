package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	schemaVersionV1 uint8 = 1

	maxPrincipalLen = math.MaxUint8
	maxTokenLen     = math.MaxUint16
	maxProfileLen   = 1 << 20
)

// Encode serializes r in the current schema version.
//
// Layout (big endian): version u8, principal len u8 + bytes, token len u16
// + bytes, profile len u32 + bytes, savedAt i64, expiresAt i64. Version 1
// blobs lack expiresAt and are still accepted by [Decode].
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}
	if len(r.PrincipalID) > maxPrincipalLen {
		return nil, errors.New("principal id too long")
	}
	if len(r.Token) > maxTokenLen {
		return nil, errors.New("token too long")
	}
	if len(r.Profile) > maxProfileLen {
		return nil, errors.New("profile snapshot too large")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 1 + len(r.PrincipalID) + 2 + len(r.Token) + 4 + len(r.Profile) + 16)

	buf.WriteByte(CurrentSchemaVersion)
	buf.WriteByte(byte(len(r.PrincipalID)))
	buf.WriteString(r.PrincipalID)

	_ = binary.Write(&buf, binary.BigEndian, uint16(len(r.Token)))
	buf.WriteString(r.Token)

	_ = binary.Write(&buf, binary.BigEndian, uint32(len(r.Profile)))
	buf.Write(r.Profile)

	_ = binary.Write(&buf, binary.BigEndian, r.SavedAt)
	_ = binary.Write(&buf, binary.BigEndian, r.ExpiresAt)

	return buf.Bytes(), nil
}

// Decode parses a blob written by any supported schema version.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != CurrentSchemaVersion && version != schemaVersionV1 {
		return nil, fmt.Errorf("%w: unsupported session schema version %d", ErrCorrupt, version)
	}

	r := &Record{SchemaVersion: version}

	principalLen, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	principal := make([]byte, principalLen)
	if _, err := io.ReadFull(reader, principal); err != nil {
		return nil, fmt.Errorf("%w: principal: %v", ErrCorrupt, err)
	}
	r.PrincipalID = string(principal)

	var tokenLen uint16
	if err := binary.Read(reader, binary.BigEndian, &tokenLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	token := make([]byte, tokenLen)
	if _, err := io.ReadFull(reader, token); err != nil {
		return nil, fmt.Errorf("%w: token: %v", ErrCorrupt, err)
	}
	r.Token = string(token)

	var profileLen uint32
	if err := binary.Read(reader, binary.BigEndian, &profileLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if profileLen > maxProfileLen || int64(profileLen) > int64(reader.Len()) {
		return nil, fmt.Errorf("%w: profile length %d", ErrCorrupt, profileLen)
	}
	if profileLen > 0 {
		r.Profile = make([]byte, profileLen)
		if _, err := io.ReadFull(reader, r.Profile); err != nil {
			return nil, fmt.Errorf("%w: profile: %v", ErrCorrupt, err)
		}
	}

	if err := binary.Read(reader, binary.BigEndian, &r.SavedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version == CurrentSchemaVersion {
		if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, reader.Len())
	}

	return r, nil
}
