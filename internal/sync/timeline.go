package sync

import (
	"sort"

	"github.com/lostfound/chatsync/internal/chat"
)

// timeline is an ordered message list, sorted by (Timestamp, Seq).
// A timeline is never modified after it has been published in a snapshot:
// every method returns a freshly allocated slice.
type timeline []chat.Message

func before(a, b chat.Message) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.Seq < b.Seq
}

func (t timeline) indexOf(id string) int {
	for i := range t {
		if t[i].ID == id {
			return i
		}
	}
	return -1
}

// with returns a new timeline holding t plus msgs, in order.
func (t timeline) with(msgs ...chat.Message) timeline {
	out := make(timeline, 0, len(t)+len(msgs))
	out = append(out, t...)
	out = append(out, msgs...)
	if len(msgs) == 1 {
		// Single insert: shift into place instead of a full sort.
		m := out[len(out)-1]
		i := sort.Search(len(t), func(i int) bool { return before(m, t[i]) })
		copy(out[i+1:], out[i:len(out)-1])
		out[i] = m
		return out
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

// without returns a new timeline lacking the entry with the given ID.
func (t timeline) without(id string) timeline {
	i := t.indexOf(id)
	if i < 0 {
		return t
	}
	out := make(timeline, 0, len(t)-1)
	out = append(out, t[:i]...)
	return append(out, t[i+1:]...)
}

// replace swaps the entry with the given ID for m, repositioning it if its
// sort key changed.
func (t timeline) replace(id string, m chat.Message) timeline {
	return t.without(id).with(m)
}
