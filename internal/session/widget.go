package session

import (
	"sync"

	"github.com/relaykit/pageagent/internal/wire"
)

// Overlay is the default in-memory widget. Hosts with a real surface supply
// their own Widget; this one records what would be rendered.
type Overlay struct {
	mu            sync.Mutex
	visible       bool
	messages      []wire.Message
	notifications int
}

// NewOverlay returns a hidden, empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{}
}

func (o *Overlay) Append(msg wire.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
}

func (o *Overlay) SetVisible(visible bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = visible
}

func (o *Overlay) Notify() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications++
}

// Visible reports whether the overlay is currently shown.
func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// Messages returns a copy of everything appended so far.
func (o *Overlay) Messages() []wire.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]wire.Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Notifications returns how many times attention was requested.
func (o *Overlay) Notifications() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.notifications
}
