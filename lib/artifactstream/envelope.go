// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstream

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a keyed BLAKE3 hash of an uncompressed payload.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// payloadDomainKey separates payload digests from any other BLAKE3 use
// of the same bytes. ASCII, zero-padded to 32 bytes. Changing it
// breaks compatibility with older nodes.
var payloadDomainKey = [32]byte{
	'b', 'u', 'i', 'l', 'd', 'm', 'e', 's', 'h', '.', 'a', 'r', 't', 'i', 'f', 'a',
	'c', 't', '.', 'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0,
}

// HashPayload returns the payload digest.
func HashPayload(payload []byte) Digest {
	hasher, err := blake3.NewKeyed(payloadDomainKey[:])
	if err != nil {
		panic("artifactstream: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// MaxPayloadSize bounds the uncompressed payload of one envelope.
// Envelopes come from peers, so Open checks every length against it
// before allocating.
const MaxPayloadSize = 1 << 30

// Envelope is the metadata that accompanies a payload on the wire. The
// receiver reads exactly WireLength body bytes after the envelope.
type Envelope struct {
	Cookies     []Cookie    `cbor:"cookies"`
	Compression Compression `cbor:"compression"`
	RawLength   int64       `cbor:"raw_length"`
	WireLength  int64       `cbor:"wire_length"`
	Digest      Digest      `cbor:"digest"`
}

// Seal prepares a packed payload for the wire. If the requested
// compression does not shrink the payload, the envelope records
// CompressionNone and the payload is sent as is.
func Seal(payload []byte, cookies []Cookie, compression Compression) (Envelope, []byte, error) {
	if total := TotalLength(cookies); total != int64(len(payload)) {
		return Envelope{}, nil, fmt.Errorf("cookies describe %d bytes, payload is %d", total, len(payload))
	}

	body := payload
	used := CompressionNone
	if compression != CompressionNone && len(payload) > 0 {
		compressed, err := compress(payload, compression)
		switch {
		case err == nil:
			body = compressed
			used = compression
		case err != errIncompressible:
			return Envelope{}, nil, err
		}
	}

	return Envelope{
		Cookies:     cookies,
		Compression: used,
		RawLength:   int64(len(payload)),
		WireLength:  int64(len(body)),
		Digest:      HashPayload(payload),
	}, body, nil
}

// Open reverses Seal: it decompresses body and verifies the digest.
// The returned payload is ready for Unpack with envelope.Cookies.
func Open(envelope Envelope, body []byte) ([]byte, error) {
	if int64(len(body)) != envelope.WireLength {
		return nil, fmt.Errorf("body is %d bytes, envelope says %d", len(body), envelope.WireLength)
	}
	if envelope.RawLength < 0 || envelope.RawLength > MaxPayloadSize {
		return nil, fmt.Errorf("envelope raw length %d outside [0, %d]", envelope.RawLength, MaxPayloadSize)
	}
	var total int64
	for _, cookie := range envelope.Cookies {
		if cookie.Length < 0 || cookie.Length > MaxPayloadSize-total {
			return nil, fmt.Errorf("%s artifact %q has length %d, which does not fit the payload limit", cookie.Type, cookie.Name, cookie.Length)
		}
		total += cookie.Length
	}
	if total != envelope.RawLength {
		return nil, fmt.Errorf("cookies describe %d bytes, envelope says %d", total, envelope.RawLength)
	}

	payload, err := decompress(body, envelope.Compression, envelope.RawLength)
	if err != nil {
		return nil, err
	}
	if digest := HashPayload(payload); digest != envelope.Digest {
		return nil, fmt.Errorf("payload digest mismatch: got %s, envelope says %s", digest, envelope.Digest)
	}
	return payload, nil
}
