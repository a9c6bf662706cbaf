// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	object := bytes.Repeat([]byte{0xFF}, 10)

	payload, cookies, err := Pack([]Artifact{
		{Type: Stdout, Name: "stdout", Source: strings.NewReader("hello\n")},
		{Type: Stderr, Name: "stderr", Source: strings.NewReader("")},
		{Type: Obj, Name: "main.o", Source: bytes.NewReader(object)},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	wantCookies := []Cookie{
		{Type: Stdout, Name: "stdout", Length: 6},
		{Type: Stderr, Name: "stderr", Length: 0},
		{Type: Obj, Name: "main.o", Length: 10},
	}
	if len(cookies) != len(wantCookies) {
		t.Fatalf("got %d cookies, want %d", len(cookies), len(wantCookies))
	}
	for i := range wantCookies {
		if cookies[i] != wantCookies[i] {
			t.Errorf("cookie[%d] = %+v, want %+v", i, cookies[i], wantCookies[i])
		}
	}
	if len(payload) != 16 {
		t.Fatalf("payload length = %d, want 16", len(payload))
	}

	var stdout, stderr, obj bytes.Buffer
	err = Unpack(bytes.NewReader(payload), cookies, map[Type]io.Writer{
		Stdout: &stdout,
		Stderr: &stderr,
		Obj:    &obj,
	})
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if stdout.String() != "hello\n" {
		t.Errorf("stdout = %q, want %q", stdout.String(), "hello\n")
	}
	if stderr.Len() != 0 {
		t.Errorf("stderr = %q, want empty", stderr.String())
	}
	if !bytes.Equal(obj.Bytes(), object) {
		t.Errorf("obj = %x, want %x", obj.Bytes(), object)
	}
}

func TestPackNilSourceIsEmpty(t *testing.T) {
	payload, cookies, err := Pack([]Artifact{{Type: Pdb, Name: "main.pdb"}})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(payload) != 0 || cookies[0].Length != 0 {
		t.Errorf("payload %d bytes, cookie length %d; want both zero", len(payload), cookies[0].Length)
	}
}

func TestUnpackMissingDestination(t *testing.T) {
	payload, cookies, err := Pack([]Artifact{
		{Type: Stdout, Name: "stdout", Source: strings.NewReader("ok")},
		{Type: Pdb, Name: "main.pdb", Source: strings.NewReader("debug")},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	var stdout bytes.Buffer
	err = Unpack(bytes.NewReader(payload), cookies, map[Type]io.Writer{Stdout: &stdout})

	var missing *MissingDestinationError
	if !errors.As(err, &missing) {
		t.Fatalf("Unpack error = %v, want *MissingDestinationError", err)
	}
	if missing.Type != Pdb {
		t.Errorf("missing type = %s, want pdb", missing.Type)
	}
	if stdout.Len() != 0 {
		t.Error("Unpack consumed bytes before reporting the missing destination")
	}
}

func TestUnpackShortStream(t *testing.T) {
	cookies := []Cookie{{Type: Obj, Name: "main.o", Length: 8}}
	err := Unpack(strings.NewReader("abc"), cookies, map[Type]io.Writer{Obj: io.Discard})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Unpack error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestUnpackSameTypeTwiceAppendsInOrder(t *testing.T) {
	payload, cookies, err := Pack([]Artifact{
		{Type: Stderr, Name: "frontend", Source: strings.NewReader("warning: a\n")},
		{Type: Stderr, Name: "backend", Source: strings.NewReader("warning: b\n")},
	})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	var stderr bytes.Buffer
	if err := Unpack(bytes.NewReader(payload), cookies, map[Type]io.Writer{Stderr: &stderr}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if stderr.String() != "warning: a\nwarning: b\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestTypeStringRoundTrip(t *testing.T) {
	for _, artifactType := range []Type{Obj, Pdb, Stdout, Stderr} {
		parsed, err := ParseType(artifactType.String())
		if err != nil {
			t.Fatalf("ParseType(%q): %v", artifactType.String(), err)
		}
		if parsed != artifactType {
			t.Errorf("ParseType(%q) = %v, want %v", artifactType.String(), parsed, artifactType)
		}
	}
	if _, err := ParseType("exe"); err == nil {
		t.Error("ParseType(exe) succeeded")
	}
}
