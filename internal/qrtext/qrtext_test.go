package qrtext

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	code, err := Render("https://cdn.lostfound.io/f/wallet.png", "  ")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("got %d lines", len(lines))
	}
	for i, l := range lines {
		if !strings.HasPrefix(l, "  ") {
			t.Fatalf("line %d not indented: %q", i, l)
		}
	}
	if !strings.ContainsAny(code, "█▀▄") {
		t.Error("no block characters in output")
	}
}

func TestRenderTooLong(t *testing.T) {
	if _, err := Render(strings.Repeat("x", 8000), ""); err == nil {
		t.Error("expected error for content beyond QR capacity")
	}
}
