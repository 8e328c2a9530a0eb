package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Bridge forwards messages from worker goroutines to the program in order.
// Post never blocks, so a worker can report while the UI goroutine is
// waiting on it.
type Bridge struct {
	mu     sync.Mutex
	queue  []tea.Msg
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func NewBridge() *Bridge {
	return &Bridge{wake: make(chan struct{}, 1)}
}

// Attach starts delivering queued and future messages through send,
// usually (*tea.Program).Send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	if b.done != nil {
		b.mu.Unlock()
		return
	}
	b.done = make(chan struct{})
	b.mu.Unlock()
	go b.pump(send)
	b.signal()
}

func (b *Bridge) Post(msg tea.Msg) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	b.signal()
}

// Close drops anything still queued and stops the pump.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.queue = nil
	done := b.done
	b.mu.Unlock()
	b.signal()
	if done != nil {
		<-done
	}
}

func (b *Bridge) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) pump(send func(tea.Msg)) {
	defer close(b.done)
	for range b.wake {
		for {
			b.mu.Lock()
			if b.closed {
				b.mu.Unlock()
				return
			}
			if len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			msg := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			send(msg)
		}
	}
}

// drain hands back everything queued so far. Only meaningful before Attach.
func (b *Bridge) drain() []tea.Msg {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}
