package chat

import (
	"strings"
	"testing"
)

func TestNewLocalID(t *testing.T) {
	a := NewLocalID()
	b := NewLocalID()
	if a == b {
		t.Fatalf("NewLocalID returned duplicate %q", a)
	}
	if !strings.HasPrefix(a, LocalIDPrefix) {
		t.Errorf("id %q missing prefix %q", a, LocalIDPrefix)
	}
	if !(Message{ID: a}).IsLocal() {
		t.Error("IsLocal() = false for local id")
	}
	if (Message{ID: "64f1c0ffee"}).IsLocal() {
		t.Error("IsLocal() = true for server id")
	}
}

func TestRoomDisplayName(t *testing.T) {
	tests := []struct {
		name string
		room Room
		want string
	}{
		{"partner name", Room{ID: "r1", PartnerEmail: "a@x.io", PartnerName: "Ada"}, "Ada"},
		{"email fallback", Room{ID: "r1", PartnerEmail: "a@x.io"}, "a@x.io"},
		{"id fallback", Room{ID: "r1"}, "r1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.room.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeliveryStateString(t *testing.T) {
	if Pending.String() != "pending" || Sent.String() != "sent" || Failed.String() != "failed" {
		t.Errorf("unexpected names: %s %s %s", Pending, Sent, Failed)
	}
	if DeliveryState(42).String() != "unknown" {
		t.Errorf("DeliveryState(42) = %s, want unknown", DeliveryState(42))
	}
}
