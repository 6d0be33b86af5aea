// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewAndClose(t *testing.T) {
	buffer, err := New(32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if buffer.Len() != 32 {
		t.Fatalf("Len = %d, want 32", buffer.Len())
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Idempotent.
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("New(0) should fail")
	}
	if _, err := New(-1); err == nil {
		t.Fatal("New(-1) should fail")
	}
}

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("0123456789abcdef0123456789abcdef")
	want := append([]byte(nil), source...)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !bytes.Equal(buffer.Bytes(), want) {
		t.Fatal("buffer contents do not match source")
	}
	for i, b := range source {
		if b != 0 {
			t.Fatalf("source byte %d not zeroed", i)
		}
	}
}

func TestNewFromReader(t *testing.T) {
	buffer, err := NewFromReader(strings.NewReader("exactly-32-bytes-of-key-material"), 32)
	if err != nil {
		t.Fatalf("NewFromReader: %v", err)
	}
	defer buffer.Close()

	if string(buffer.Bytes()) != "exactly-32-bytes-of-key-material" {
		t.Fatal("buffer contents do not match reader")
	}
}

func TestNewFromReaderShortRead(t *testing.T) {
	if _, err := NewFromReader(strings.NewReader("short"), 32); err == nil {
		t.Fatal("short read should fail")
	}
}

func TestUseAfterClosePanics(t *testing.T) {
	buffer, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buffer.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("Bytes after Close should panic")
		}
	}()
	buffer.Bytes()
}
