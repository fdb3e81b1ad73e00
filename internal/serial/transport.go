package serial

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/serial2govee/internal/core/port"

	bugst "go.bug.st/serial"
)

// MaxLineLength bounds the bytes buffered without a line terminator.
const MaxLineLength = 4096

var ErrTransport = errors.New("serial transport failure")

// Opener opens a go.bug.st/serial port per Open call.
type Opener struct {
	portName    string
	baudrate    int
	readTimeout time.Duration
}

// ensure interface compliance
var _ port.TransportOpener = (*Opener)(nil)
var _ port.LineTransport = (*Transport)(nil)

func NewOpener(portName string, baudrate int, readTimeout time.Duration) *Opener {
	return &Opener{portName: portName, baudrate: baudrate, readTimeout: readTimeout}
}

func (o *Opener) Name() string {
	return fmt.Sprintf("%s@%d", o.portName, o.baudrate)
}

func (o *Opener) Open() (port.LineTransport, error) {
	p, err := bugst.Open(o.portName, &bugst.Mode{BaudRate: o.baudrate})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrTransport, o.portName, err)
	}
	if err := p.SetReadTimeout(o.readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: set read timeout on %s: %v", ErrTransport, o.portName, err)
	}
	return newTransport(o.portName, p), nil
}

// Transport splits the byte stream of an open port into lines.
type Transport struct {
	name   string
	port   bugst.Port
	buf    []byte
	chunk  []byte
	mu     sync.Mutex
	closed bool
}

func newTransport(name string, p bugst.Port) *Transport {
	return &Transport{
		name:  name,
		port:  p,
		chunk: make([]byte, 256),
	}
}

// ReadLine returns the next line including its terminator. When the read timeout
// expires with a partial line buffered, the partial line is returned as is.
func (t *Transport) ReadLine() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("%w: %s is closed", ErrTransport, t.name)
	}

	for {
		if line := t.nextLine(); line != nil {
			return line, nil
		}
		n, err := t.port.Read(t.chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrTransport, t.name, err)
		}
		if n == 0 {
			// read timeout
			if len(t.buf) == 0 {
				return nil, nil
			}
			return t.flush(), nil
		}
		t.buf = append(t.buf, t.chunk[:n]...)
	}
}

func (t *Transport) nextLine() []byte {
	if i := bytes.IndexByte(t.buf, '\n'); i >= 0 {
		line := make([]byte, i+1)
		copy(line, t.buf[:i+1])
		t.buf = append(t.buf[:0], t.buf[i+1:]...)
		return line
	}
	if len(t.buf) >= MaxLineLength {
		return t.flush()
	}
	return nil
}

func (t *Transport) flush() []byte {
	line := t.buf
	t.buf = nil
	return line
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.buf = nil
	return t.port.Close()
}
