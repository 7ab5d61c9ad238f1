package sync

import (
	"fmt"
	gosync "sync"
	"time"
)

// Phase is the coarse state of the sync engine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSyncing
	PhaseSuccess
	PhaseError
)

var phaseNames = [...]string{"idle", "syncing", "success", "error"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown sync phase %q", b)
}

// State is one published value: a phase plus the message that goes with
// Success and Error.
type State struct {
	Phase   Phase     `json:"phase"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

func (s State) String() string {
	if s.Message == "" {
		return s.Phase.String()
	}
	return s.Phase.String() + ": " + s.Message
}

// Publisher holds the current sync state and fans it out to subscribers.
//
// Only the engine transitions state; observers read Current or Subscribe.
// Transitions follow Idle -> Syncing -> Success|Error -> Idle.
type Publisher struct {
	mu     gosync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
	now    func() time.Time
}

// NewPublisher creates a publisher in the Idle phase.
func NewPublisher() *Publisher {
	p := &Publisher{
		subs: make(map[int]chan State),
		now:  time.Now,
	}
	p.state = State{Phase: PhaseIdle, At: p.now()}
	return p
}

// Current returns the latest state.
func (p *Publisher) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Subscribe returns a channel that receives the current state immediately
// and every transition after it. A slow subscriber loses intermediate
// states, never the latest one. Call cancel to unsubscribe; it closes the
// channel.
func (p *Publisher) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- p.state
	p.mu.Unlock()

	var once gosync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// tryBegin moves to Syncing unless a run is already in progress.
func (p *Publisher) tryBegin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Phase == PhaseSyncing {
		return ErrSyncInProgress
	}
	p.setLocked(State{Phase: PhaseSyncing})
	return nil
}

func (p *Publisher) succeed(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(State{Phase: PhaseSuccess, Message: msg})
}

func (p *Publisher) fail(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(State{Phase: PhaseError, Message: msg})
}

// reset returns Success or Error to Idle. It reports false, changing
// nothing, while a run is in progress or the state is already Idle.
func (p *Publisher) reset() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state.Phase {
	case PhaseSuccess, PhaseError:
		p.setLocked(State{Phase: PhaseIdle})
		return true
	case PhaseIdle, PhaseSyncing:
		return false
	}
	return false
}

func (p *Publisher) setLocked(s State) {
	s.At = p.now()
	p.state = s
	for _, ch := range p.subs {
		select {
		case ch <- s:
		default:
			// Full: drop the oldest queued state so the latest gets through.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}
