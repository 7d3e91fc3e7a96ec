package events

import (
	"context"
	"path"
	"strconv"
	"sync"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// localStreamCap bounds each in-process stream, like XADD MAXLEN.
const localStreamCap = 10000

// LocalBus is an in-process domain.SignalBus for single-replica deployments
// without Redis. Slow subscribers drop messages rather than block publishers.
type LocalBus struct {
	mu      sync.Mutex
	subs    map[int]localSub
	nextSub int
	streams map[string][]domain.StreamMessage
	seq     uint64
}

type localSub struct {
	pattern string
	ch      chan []byte
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: map[int]localSub{}, streams: map[string][]domain.StreamMessage{}}
}

func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe matches channel names with path.Match globs.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = localSub{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *LocalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{ID: strconv.FormatUint(b.seq, 10), Payload: payload})
	if len(msgs) > localStreamCap {
		msgs = msgs[len(msgs)-localStreamCap:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns entries with an id greater than lastID ("0" for all).
func (b *LocalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after, err := strconv.ParseUint(lastID, 10, 64)
	if err != nil {
		after = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseUint(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*LocalBus)(nil)
