// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Type identifies which compiler output an artifact is. Values are
// protocol constants.
type Type uint8

const (
	Obj    Type = 1
	Pdb    Type = 2
	Stdout Type = 3
	Stderr Type = 4
)

func (t Type) String() string {
	switch t {
	case Obj:
		return "obj"
	case Pdb:
		return "pdb"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseType parses the String form of a Type.
func ParseType(name string) (Type, error) {
	switch name {
	case "obj":
		return Obj, nil
	case "pdb":
		return Pdb, nil
	case "stdout":
		return Stdout, nil
	case "stderr":
		return Stderr, nil
	default:
		return 0, fmt.Errorf("unknown artifact type %q", name)
	}
}

// Cookie locates one artifact inside a packed stream.
type Cookie struct {
	Type   Type   `cbor:"type"`
	Name   string `cbor:"name"`
	Length int64  `cbor:"length"`
}

// Artifact is one input to Pack.
type Artifact struct {
	Type   Type
	Name   string
	Source io.Reader
}

// MissingDestinationError is returned by Unpack when cookies reference
// an artifact type with no registered destination.
type MissingDestinationError struct {
	Type Type
	Name string
}

func (e *MissingDestinationError) Error() string {
	return fmt.Sprintf("no destination for %s artifact %q", e.Type, e.Name)
}

// Pack drains each artifact's source in order and returns the
// concatenated payload with one cookie per artifact. A nil Source is
// an empty artifact.
func Pack(artifacts []Artifact) ([]byte, []Cookie, error) {
	var payload bytes.Buffer
	cookies := make([]Cookie, 0, len(artifacts))

	for _, artifact := range artifacts {
		var written int64
		if artifact.Source != nil {
			var err error
			written, err = io.Copy(&payload, artifact.Source)
			if err != nil {
				return nil, nil, fmt.Errorf("reading %s artifact %q: %w", artifact.Type, artifact.Name, err)
			}
		}
		cookies = append(cookies, Cookie{
			Type:   artifact.Type,
			Name:   artifact.Name,
			Length: written,
		})
	}

	return payload.Bytes(), cookies, nil
}

// Unpack copies each cookie's bytes from stream to the destination for
// its type. Every type named by cookies must have a destination; this
// is checked before any bytes are consumed. A stream shorter than the
// cookies describe fails with io.ErrUnexpectedEOF.
func Unpack(stream io.Reader, cookies []Cookie, destinations map[Type]io.Writer) error {
	for _, cookie := range cookies {
		if destinations[cookie.Type] == nil {
			return &MissingDestinationError{Type: cookie.Type, Name: cookie.Name}
		}
		if cookie.Length < 0 {
			return fmt.Errorf("%s artifact %q has negative length %d", cookie.Type, cookie.Name, cookie.Length)
		}
	}

	for _, cookie := range cookies {
		copied, err := io.CopyN(destinations[cookie.Type], stream, cookie.Length)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("unpacking %s artifact %q (%d of %d bytes): %w",
				cookie.Type, cookie.Name, copied, cookie.Length, err)
		}
	}
	return nil
}

// TotalLength is the payload size described by cookies.
func TotalLength(cookies []Cookie) int64 {
	var total int64
	for _, cookie := range cookies {
		total += cookie.Length
	}
	return total
}
