package serial

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bugst "go.bug.st/serial"
)

// chunkPort replays chunks; an empty chunk is a read timeout.
type chunkPort struct {
	bugst.Port
	chunks [][]byte
	err    error
	closes int
}

func (p *chunkPort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		return 0, nil
	}
	chunk := p.chunks[0]
	n := copy(b, chunk)
	if n < len(chunk) {
		p.chunks[0] = chunk[n:]
	} else {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *chunkPort) Close() error {
	p.closes++
	return nil
}

func chunks(parts ...string) [][]byte {
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		out = append(out, []byte(p))
	}
	return out
}

func TestReadLineSplitsLines(t *testing.T) {

	require := require.New(t)

	p := &chunkPort{chunks: chunks("LIGHTS", "_ON\r\nLIGHTS_OFF\n", "42")}
	tr := newTransport("test", p)

	line, err := tr.ReadLine()
	require.NoError(err)
	assert.Equal(t, "LIGHTS_ON\r\n", string(line))

	line, err = tr.ReadLine()
	require.NoError(err)
	assert.Equal(t, "LIGHTS_OFF\n", string(line))

	// partial line is flushed on timeout
	line, err = tr.ReadLine()
	require.NoError(err)
	assert.Equal(t, "42", string(line))

	line, err = tr.ReadLine()
	require.NoError(err)
	assert.Nil(t, line, "timeout without data")
}

func TestReadLineFlushesLongLines(t *testing.T) {

	long := strings.Repeat("x", MaxLineLength+10)
	p := &chunkPort{chunks: chunks(long + "\n")}
	tr := newTransport("test", p)

	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Len(t, line, MaxLineLength)

	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10)+"\n", string(line))
}

func TestReadLineError(t *testing.T) {

	p := &chunkPort{err: errors.New("device disconnected")}
	tr := newTransport("test", p)

	_, err := tr.ReadLine()
	assert.ErrorIs(t, err, ErrTransport)
}

func TestCloseIdempotent(t *testing.T) {

	p := &chunkPort{}
	tr := newTransport("test", p)

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
	assert.Equal(t, 1, p.closes)

	_, err := tr.ReadLine()
	assert.ErrorIs(t, err, ErrTransport)
}

func TestOpenMissingPort(t *testing.T) {

	o := NewOpener("/dev/serial2govee-does-not-exist", 115200, 0)
	assert.Equal(t, "/dev/serial2govee-does-not-exist@115200", o.Name())

	_, err := o.Open()
	assert.ErrorIs(t, err, ErrTransport)
}

func TestScriptedOpener(t *testing.T) {

	require := require.New(t)

	tr := NewScriptedTransport(Line("LIGHTS_ON\n"), Timeout(), Failure(errors.New("unplugged")))
	o := NewScriptedOpener(OpenResult{Err: errors.New("busy")}, OpenResult{Transport: tr})

	_, err := o.Open()
	require.Error(err)

	opened, err := o.Open()
	require.NoError(err)

	line, err := opened.ReadLine()
	require.NoError(err)
	assert.Equal(t, "LIGHTS_ON\n", string(line))

	line, err = opened.ReadLine()
	require.NoError(err)
	assert.Nil(t, line)

	_, err = opened.ReadLine()
	assert.ErrorIs(t, err, ErrTransport)

	_, err = o.Open()
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 3, o.Attempts())
}
