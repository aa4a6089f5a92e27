package sniffer

import (
	"errors"
	"testing"
)

func TestDetectHead(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 8)...)
	result, err := DetectHead(png)
	if err != nil {
		t.Fatalf("DetectHead png: %v", err)
	}
	if result.Type != TypePNG || result.MIME != "image/png" {
		t.Fatalf("unexpected png result: %+v", result)
	}

	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}
	result, err = DetectHead(jpeg)
	if err != nil {
		t.Fatalf("DetectHead jpeg: %v", err)
	}
	if result.Type != TypeJPEG {
		t.Fatalf("unexpected jpeg result: %+v", result)
	}

	if _, err := DetectHead([]byte("<svg xmlns=...")); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("svg must be rejected, got %v", err)
	}
	if _, err := DetectHead(nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("empty head must be rejected, got %v", err)
	}
}

func TestMimeType(t *testing.T) {
	if got := MimeType("image/png; charset=binary"); got != "image/png" {
		t.Fatalf("MimeType = %q", got)
	}
	if got := MimeType(""); got != "" {
		t.Fatalf("MimeType empty = %q", got)
	}
}
