package serial

import (
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/serial2govee/internal/core/port"
)

// ScriptStep is one scripted ReadLine result. A zero step is a read timeout.
type ScriptStep struct {
	Line string
	Err  error
}

func Line(text string) ScriptStep {
	return ScriptStep{Line: text}
}

func Timeout() ScriptStep {
	return ScriptStep{}
}

func Failure(err error) ScriptStep {
	return ScriptStep{Err: fmt.Errorf("%w: %v", ErrTransport, err)}
}

// ScriptedTransport replays a fixed sequence of reads. Once the script is
// exhausted every read waits IdleDelay and reports a timeout.
type ScriptedTransport struct {
	mu        sync.Mutex
	steps     []ScriptStep
	closed    bool
	IdleDelay time.Duration
}

// ensure interface compliance
var _ port.LineTransport = (*ScriptedTransport)(nil)
var _ port.TransportOpener = (*ScriptedOpener)(nil)

func NewScriptedTransport(steps ...ScriptStep) *ScriptedTransport {
	return &ScriptedTransport{steps: steps, IdleDelay: 5 * time.Millisecond}
}

func (s *ScriptedTransport) ReadLine() ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: scripted transport is closed", ErrTransport)
	}
	if len(s.steps) == 0 {
		delay := s.IdleDelay
		s.mu.Unlock()
		time.Sleep(delay)
		return nil, nil
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	if step.Line == "" {
		return nil, nil
	}
	return []byte(step.Line), nil
}

func (s *ScriptedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *ScriptedTransport) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Remaining returns the number of scripted steps not yet consumed.
func (s *ScriptedTransport) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// OpenResult is the scripted result of one Open call.
type OpenResult struct {
	Transport *ScriptedTransport
	Err       error
}

// ScriptedOpener hands out scripted transports in order. Once exhausted every
// Open fails.
type ScriptedOpener struct {
	mu       sync.Mutex
	results  []OpenResult
	attempts int
	opened   []*ScriptedTransport
}

func NewScriptedOpener(results ...OpenResult) *ScriptedOpener {
	return &ScriptedOpener{results: results}
}

func (o *ScriptedOpener) Name() string {
	return "scripted"
}

func (o *ScriptedOpener) Open() (port.LineTransport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.attempts++
	if len(o.results) == 0 {
		return nil, fmt.Errorf("%w: port not found", ErrTransport)
	}
	result := o.results[0]
	o.results = o.results[1:]
	if result.Err != nil {
		return nil, result.Err
	}
	o.opened = append(o.opened, result.Transport)
	return result.Transport, nil
}

func (o *ScriptedOpener) Attempts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempts
}

// Opened returns the transports handed out so far.
func (o *ScriptedOpener) Opened() []*ScriptedTransport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*ScriptedTransport(nil), o.opened...)
}
