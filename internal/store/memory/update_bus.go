package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

const busBufferSize = 64

// UpdateBus is a process-local domain.UpdateBus. Publish never blocks; a
// subscriber whose buffer is full misses the message.
type UpdateBus struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func NewUpdateBus() *UpdateBus {
	return &UpdateBus{subs: make(map[string]map[chan []byte]struct{})}
}

// Publish delivers a copy of payload to every current subscriber of channel.
func (b *UpdateBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that is closed when ctx is done.
func (b *UpdateBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, busBufferSize)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

var _ domain.UpdateBus = (*UpdateBus)(nil)
