// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstream

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/bureau-foundation/buildmesh/lib/codec"
)

func packText(t *testing.T) ([]byte, []Cookie) {
	t.Helper()
	diagnostics := strings.Repeat("main.c:12:5: warning: unused variable 'x'\n", 200)
	payload, cookies, err := Pack([]Artifact{
		{Type: Stderr, Name: "stderr", Source: strings.NewReader(diagnostics)},
		{Type: Obj, Name: "main.o", Source: bytes.NewReader(bytes.Repeat([]byte{0x7F, 'E', 'L', 'F'}, 512))},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return payload, cookies
}

func TestSealOpenCompressions(t *testing.T) {
	payload, cookies := packText(t)

	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			envelope, body, err := Seal(payload, cookies, compression)
			if err != nil {
				t.Fatalf("Seal: %v", err)
			}
			if envelope.Compression != compression {
				t.Errorf("envelope compression = %s, want %s", envelope.Compression, compression)
			}
			if compression != CompressionNone && envelope.WireLength >= envelope.RawLength {
				t.Errorf("wire length %d not smaller than raw %d", envelope.WireLength, envelope.RawLength)
			}

			// The envelope crosses the wire as CBOR.
			data, err := codec.Marshal(envelope)
			if err != nil {
				t.Fatalf("Marshal envelope: %v", err)
			}
			var decoded Envelope
			if err := codec.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal envelope: %v", err)
			}

			opened, err := Open(decoded, body)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !bytes.Equal(opened, payload) {
				t.Error("opened payload differs from the original")
			}
		})
	}
}

func TestSealFallsBackWhenIncompressible(t *testing.T) {
	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	payload, cookies, err := Pack([]Artifact{{Type: Obj, Name: "blob.o", Source: bytes.NewReader(random)}})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	envelope, body, err := Seal(payload, cookies, CompressionZstd)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if envelope.Compression != CompressionNone {
		t.Errorf("compression = %s, want none for random data", envelope.Compression)
	}
	if !bytes.Equal(body, payload) {
		t.Error("fallback body differs from payload")
	}
}

func TestOpenRejectsCorruption(t *testing.T) {
	payload, cookies := packText(t)
	envelope, body, err := Seal(payload, cookies, CompressionNone)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	corrupted := bytes.Clone(body)
	corrupted[len(corrupted)-1] ^= 0x01
	if _, err := Open(envelope, corrupted); err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Errorf("Open(corrupted) error = %v, want digest mismatch", err)
	}

	if _, err := Open(envelope, body[:len(body)-1]); err == nil {
		t.Error("Open(truncated) succeeded")
	}
}

func TestSealRejectsCookieMismatch(t *testing.T) {
	_, _, err := Seal([]byte("abc"), []Cookie{{Type: Stdout, Name: "stdout", Length: 4}}, CompressionNone)
	if err == nil {
		t.Error("Seal accepted cookies that do not describe the payload")
	}
}

func TestOpenRejectsImpossibleLengths(t *testing.T) {
	body := []byte{0, 1, 2, 3}
	tests := []struct {
		name     string
		envelope Envelope
	}{
		{
			name: "negative raw length",
			envelope: Envelope{
				Cookies:     []Cookie{{Type: Obj, Name: "x.o", Length: -1}},
				Compression: CompressionLZ4,
				RawLength:   -1,
				WireLength:  4,
			},
		},
		{
			name: "negative cookie balanced by another",
			envelope: Envelope{
				Cookies:     []Cookie{{Type: Obj, Name: "x.o", Length: -4}, {Type: Stdout, Name: "stdout", Length: 8}},
				Compression: CompressionNone,
				RawLength:   4,
				WireLength:  4,
			},
		},
		{
			name: "raw length beyond limit",
			envelope: Envelope{
				Cookies:     []Cookie{{Type: Obj, Name: "x.o", Length: MaxPayloadSize + 1}},
				Compression: CompressionZstd,
				RawLength:   MaxPayloadSize + 1,
				WireLength:  4,
			},
		},
		{
			name: "cookies overflowing the limit together",
			envelope: Envelope{
				Cookies: []Cookie{
					{Type: Obj, Name: "a.o", Length: MaxPayloadSize},
					{Type: Obj, Name: "b.o", Length: MaxPayloadSize},
				},
				Compression: CompressionLZ4,
				RawLength:   2 * MaxPayloadSize,
				WireLength:  4,
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if payload, err := Open(test.envelope, body); err == nil {
				t.Errorf("Open accepted %+v, returned %d bytes", test.envelope, len(payload))
			}
		})
	}
}
