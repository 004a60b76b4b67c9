// Package protocol implements the node wire protocol: a stream of 4-byte
// big-endian command tags, each followed by a fixed or self-describing
// payload. There is no framing beyond that.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	fractal "github.com/marben/distfrac"
)

// DefaultPort is the TCP port nodes listen on.
const DefaultPort = 7331

// MaxPixels bounds the image size a node accepts.
const MaxPixels = 1 << 28

// Command is a wire command tag.
type Command int32

const (
	CmdClose        Command = 0
	CmdPing         Command = 1
	CmdQueryCPUs    Command = 2
	CmdQueryBunch   Command = 3
	CmdSendParams   Command = 1000
	CmdSendRowCount Command = 1010
	CmdRenderRows   Command = 1100
)

func (c Command) String() string {
	switch c {
	case CmdClose:
		return "CLOSE"
	case CmdPing:
		return "PING"
	case CmdQueryCPUs:
		return "QUERY_CPUS"
	case CmdQueryBunch:
		return "QUERY_BUNCH"
	case CmdSendParams:
		return "SEND_PARAMS"
	case CmdSendRowCount:
		return "SEND_ROWCOUNT"
	case CmdRenderRows:
		return "RENDER_ROWS"
	}
	return fmt.Sprintf("Command(%d)", int32(c))
}

// Known reports whether c is a command nodes understand.
func (c Command) Known() bool {
	switch c {
	case CmdClose, CmdPing, CmdQueryCPUs, CmdQueryBunch, CmdSendParams, CmdSendRowCount, CmdRenderRows:
		return true
	}
	return false
}

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNoParams       = errors.New("no parameters received")
	ErrBadRange       = errors.New("invalid row range")
	ErrBadParams      = errors.New("invalid parameters")
)

func WriteInt(w io.Writer, v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

func ReadInt(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func WriteCommand(w io.Writer, c Command) error {
	return WriteInt(w, int32(c))
}

func ReadCommand(r io.Reader) (Command, error) {
	v, err := ReadInt(r)
	return Command(v), err
}

// pixels per chunk when streaming buffers
const pixelChunk = 1024

// WritePixels streams px as big-endian 32-bit ARGB values.
func WritePixels(w io.Writer, px []fractal.ARGB) error {
	buf := make([]byte, 0, pixelChunk*4)
	for len(px) > 0 {
		n := min(len(px), pixelChunk)
		buf = buf[:0]
		for _, c := range px[:n] {
			buf = binary.BigEndian.AppendUint32(buf, uint32(c))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
		px = px[n:]
	}
	return nil
}

// ReadPixels fills dst from a stream written by WritePixels.
func ReadPixels(r io.Reader, dst []fractal.ARGB) error {
	buf := make([]byte, pixelChunk*4)
	for len(dst) > 0 {
		n := min(len(dst), pixelChunk)
		b := buf[:n*4]
		if _, err := io.ReadFull(r, b); err != nil {
			return err
		}
		for i := range n {
			dst[i] = fractal.ARGB(binary.BigEndian.Uint32(b[i*4:]))
		}
		dst = dst[n:]
	}
	return nil
}
