package sync

import (
	"slices"
	"testing"

	"github.com/lostfound/chatsync/internal/chat"
)

func entry(id string, ts int64, seq uint64) chat.Message {
	return chat.Message{ID: id, Timestamp: ts, Seq: seq}
}

func timelineIDs(t timeline) []string {
	out := make([]string, len(t))
	for i, m := range t {
		out[i] = m.ID
	}
	return out
}

func TestTimelineWith(t *testing.T) {
	base := timeline{entry("a", 10, 1), entry("b", 20, 2), entry("c", 20, 3)}

	tests := []struct {
		name string
		add  []chat.Message
		want []string
	}{
		{"front", []chat.Message{entry("x", 5, 4)}, []string{"x", "a", "b", "c"}},
		{"tie goes after", []chat.Message{entry("x", 20, 4)}, []string{"a", "b", "c", "x"}},
		{"middle", []chat.Message{entry("x", 15, 4)}, []string{"a", "x", "b", "c"}},
		{"batch", []chat.Message{entry("y", 30, 5), entry("x", 1, 4)}, []string{"x", "a", "b", "c", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.with(tt.add...)
			if ids := timelineIDs(got); !slices.Equal(ids, tt.want) {
				t.Errorf("with() = %v, want %v", ids, tt.want)
			}
			if ids := timelineIDs(base); !slices.Equal(ids, []string{"a", "b", "c"}) {
				t.Errorf("base modified: %v", ids)
			}
		})
	}
}

func TestTimelineWithoutAndReplace(t *testing.T) {
	base := timeline{entry("a", 10, 1), entry("b", 20, 2), entry("c", 30, 3)}

	if got := timelineIDs(base.without("b")); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("without(b) = %v", got)
	}
	if got := base.without("missing"); len(got) != 3 {
		t.Errorf("without(missing) len = %d, want 3", len(got))
	}

	moved := base.replace("a", entry("a2", 40, 1))
	if got := timelineIDs(moved); !slices.Equal(got, []string{"b", "c", "a2"}) {
		t.Errorf("replace() = %v, want [b c a2]", got)
	}
	if base.indexOf("a") != 0 {
		t.Error("replace modified the base timeline")
	}
}
