package desktop

import (
	"errors"
	"sync"
)

// ErrListenerActive is returned when Start is called on an armed listener.
var ErrListenerActive = errors.New("mouse listener already active")

// ErrListenerIdle is returned when a click is posted to an unarmed listener.
var ErrListenerIdle = errors.New("mouse listener is not armed")

// ChannelListener is a MouseListener fed by explicit click reports, such as
// the shell's "click X Y" command or the MCP click tool.
type ChannelListener struct {
	mu     sync.Mutex
	ch     chan Point
	active bool
	last   Point
	seen   bool
}

// NewChannelListener creates an idle listener.
func NewChannelListener() *ChannelListener {
	return &ChannelListener{}
}

func (l *ChannelListener) Start() (<-chan Point, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return nil, ErrListenerActive
	}
	l.ch = make(chan Point, 1)
	l.active = true
	return l.ch, nil
}

func (l *ChannelListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = false
	l.ch = nil
}

func (l *ChannelListener) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *ChannelListener) LastClick() (Point, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.seen
}

// Post reports a click. The listener delivers it and disarms itself.
func (l *ChannelListener) Post(p Point) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active || l.ch == nil {
		return ErrListenerIdle
	}
	l.last = p
	l.seen = true
	l.ch <- p
	l.active = false
	l.ch = nil
	return nil
}
