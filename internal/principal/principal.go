// Package principal implements the textual encoding of principals, the
// opaque identifiers used for users and ledgers across the NoteLedger API.
//
// A principal is at most 29 bytes. Its text form is the lowercase, unpadded
// base32 encoding of a big-endian CRC-32 checksum followed by the raw bytes,
// split into groups of five characters joined by dashes.
package principal

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	b32 "github.com/multiformats/go-base32"
)

// MaxLength is the maximum number of raw bytes in a principal.
const MaxLength = 29

const (
	selfAuthenticatingTag = 0x02
	anonymousTag          = 0x04
)

// ErrInvalid is returned when a text form cannot be decoded into a principal.
var ErrInvalid = errors.New("invalid principal")

// Principal is an immutable principal identifier.
type Principal struct {
	raw string
}

// FromBytes builds a principal from raw bytes.
func FromBytes(b []byte) (Principal, error) {
	if len(b) > MaxLength {
		return Principal{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalid, len(b), MaxLength)
	}
	return Principal{raw: string(b)}, nil
}

// Anonymous returns the principal used by callers without an identity.
func Anonymous() Principal {
	return Principal{raw: string([]byte{anonymousTag})}
}

// SelfAuthenticating derives a principal from a DER-encoded public key
// (SubjectPublicKeyInfo). The same key always maps to the same principal.
func SelfAuthenticating(spki []byte) Principal {
	sum := sha256.Sum224(spki)
	return Principal{raw: string(append(sum[:], selfAuthenticatingTag))}
}

// FromText parses the canonical text form of a principal.
func FromText(text string) (Principal, error) {
	if text == "" {
		return Principal{}, fmt.Errorf("%w: empty text", ErrInvalid)
	}
	compact := strings.ReplaceAll(text, "-", "")
	decoded, err := b32.RawStdEncoding.DecodeString(strings.ToUpper(compact))
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(decoded) < crc32.Size {
		return Principal{}, fmt.Errorf("%w: too short", ErrInvalid)
	}
	body := decoded[crc32.Size:]
	if binary.BigEndian.Uint32(decoded[:crc32.Size]) != crc32.ChecksumIEEE(body) {
		return Principal{}, fmt.Errorf("%w: checksum mismatch", ErrInvalid)
	}
	p, err := FromBytes(body)
	if err != nil {
		return Principal{}, err
	}
	if p.Text() != text {
		return Principal{}, fmt.Errorf("%w: %q is not in canonical form", ErrInvalid, text)
	}
	return p, nil
}

// MustFromText is like FromText but panics on malformed input.
// It is intended for constants and tests.
func MustFromText(text string) Principal {
	p, err := FromText(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Bytes returns a copy of the raw principal bytes.
func (p Principal) Bytes() []byte {
	return []byte(p.raw)
}

// Text returns the canonical text form.
func (p Principal) Text() string {
	buf := make([]byte, crc32.Size, crc32.Size+len(p.raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE([]byte(p.raw)))
	buf = append(buf, p.raw...)
	enc := strings.ToLower(b32.RawStdEncoding.EncodeToString(buf))

	var sb strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		end := min(i+5, len(enc))
		sb.WriteString(enc[i:end])
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (p Principal) String() string {
	return p.Text()
}

// IsAnonymous reports whether p is the anonymous principal.
func (p Principal) IsAnonymous() bool {
	return p.raw == string([]byte{anonymousTag})
}

// Equal reports whether two principals carry the same bytes.
func (p Principal) Equal(other Principal) bool {
	return bytes.Equal([]byte(p.raw), []byte(other.raw))
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.Text()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := FromText(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
