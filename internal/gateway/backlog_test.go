package gateway

import (
	"fmt"
	"testing"
)

func fill(b *backlog, from, to int64) {
	for seq := from; seq <= to; seq++ {
		b.add(seq, []byte(fmt.Sprintf(`{"channel_seq":%d}`, seq)))
	}
}

func TestBacklogAfter(t *testing.T) {
	b := newBacklog(50)
	fill(b, 1, 6)
	got := b.after(4)
	if len(got) != 2 {
		t.Fatalf("after(4) returned %d envelopes", len(got))
	}
	if string(got[0]) != `{"channel_seq":5}` || string(got[1]) != `{"channel_seq":6}` {
		t.Errorf("after(4) = %q", got)
	}
	if got := b.after(6); len(got) != 0 {
		t.Errorf("after(latest) = %q, want none", got)
	}
}

func TestBacklogOverwritesOldest(t *testing.T) {
	b := newBacklog(3)
	fill(b, 1, 7)
	if b.len() != 3 {
		t.Fatalf("len = %d, want 3", b.len())
	}
	got := b.after(0)
	if len(got) != 3 || string(got[0]) != `{"channel_seq":5}` || string(got[2]) != `{"channel_seq":7}` {
		t.Errorf("after(0) = %q, want seqs 5..7", got)
	}
}

func TestBacklogDefaultSize(t *testing.T) {
	b := newBacklog(0)
	if len(b.items) != DefaultBacklog {
		t.Fatalf("size = %d", len(b.items))
	}
	if got := b.after(0); got != nil {
		t.Errorf("empty backlog returned %q", got)
	}
}
