package gateway

import "sync"

// DefaultBacklog is how many envelopes each channel keeps for late readers.
const DefaultBacklog = 256

type backlogItem struct {
	channelSeq int64
	env        []byte
}

// backlog holds the newest envelopes of one channel, oldest first. Once full
// each push overwrites the oldest item.
type backlog struct {
	mu    sync.RWMutex
	items []backlogItem
	head  int
	count int
}

func newBacklog(size int) *backlog {
	if size < 1 {
		size = DefaultBacklog
	}
	return &backlog{items: make([]backlogItem, size)}
}

// add stores env. env is shared with subscriber queues and must not be
// mutated afterwards.
func (b *backlog) add(channelSeq int64, env []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it := backlogItem{channelSeq: channelSeq, env: env}
	if b.count < len(b.items) {
		b.items[(b.head+b.count)%len(b.items)] = it
		b.count++
		return
	}
	b.items[b.head] = it
	b.head = (b.head + 1) % len(b.items)
}

// after returns the envelopes whose channel_seq is greater than seq.
func (b *backlog) after(seq int64) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out [][]byte
	for i := 0; i < b.count; i++ {
		it := b.items[(b.head+i)%len(b.items)]
		if it.channelSeq > seq {
			out = append(out, it.env)
		}
	}
	return out
}

func (b *backlog) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
