// Package pktline implements git's packet-line framing format used by the
// smart-HTTP v2 transport: a 4-hex-digit length header (the total frame size,
// header included) followed by the payload, with "0000" reserved for the
// flush packet.
package pktline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// HeaderLength is the fixed width, in bytes, of a pkt-line's length header.
const HeaderLength = 4

// MaxLength is the largest frame (header included) the wire format allows.
const MaxLength = 65520

// Flush is the literal bytes of a flush-pkt.
var Flush = []byte("0000")

var (
	// ErrTooLong is returned by Encode when the payload would overflow MaxLength.
	ErrTooLong = errors.New("pktline: payload exceeds max pkt-line length")
	// ErrInvalidHeader is returned when a length header is not 4 hex digits.
	ErrInvalidHeader = errors.New("pktline: invalid length header")
	// ErrInvalidLength is returned when a header encodes a length below the header width (and is not flush).
	ErrInvalidLength = errors.New("pktline: invalid line length")
	// ErrUnderflow is returned when fewer payload bytes are available than the header promised.
	ErrUnderflow = errors.New("pktline: short read, underflow")
)

// Encode frames b as a single pkt-line: a 4-hex-digit length header (frame
// size including the header) followed by b verbatim. A nil or empty b
// produces the flush packet.
func Encode(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return append([]byte(nil), Flush...), nil
	}
	total := HeaderLength + len(b)
	if total > MaxLength {
		return nil, ErrTooLong
	}
	out := make([]byte, 0, total)
	out = append(out, []byte(fmt.Sprintf("%04x", total))...)
	out = append(out, b...)
	return out, nil
}

// EncodeString is Encode for a string payload.
func EncodeString(s string) ([]byte, error) {
	return Encode([]byte(s))
}

// Encoder accumulates pkt-lines into a single byte stream.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// AddLine frames line as a pkt-line and appends it.
func (e *Encoder) AddLine(line string) error {
	b, err := EncodeString(line)
	if err != nil {
		return err
	}
	e.buf.Write(b)
	return nil
}

// AddBytes frames raw bytes as a pkt-line and appends it (no trailing
// newline is added; callers that want LF-terminated lines must include it).
func (e *Encoder) AddBytes(b []byte) error {
	framed, err := Encode(b)
	if err != nil {
		return err
	}
	e.buf.Write(framed)
	return nil
}

// AddFlush appends a flush-pkt.
func (e *Encoder) AddFlush() {
	e.buf.Write(Flush)
}

// Bytes returns the accumulated stream.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Reader returns a reader over the accumulated stream.
func (e *Encoder) Reader() io.Reader {
	return bytes.NewReader(e.buf.Bytes())
}

// Decoder reads pkt-lines off an underlying reader.
type Decoder struct {
	r *bufReader
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: newBufReader(r)}
}

// Kind classifies a decoded line.
type Kind int

const (
	// Data is a pkt-line carrying a payload.
	Data Kind = iota
	// FlushPkt is the "0000" flush packet.
	FlushPkt
)

// Line is one decoded pkt-line.
type Line struct {
	Kind    Kind
	Payload []byte
}

// ReadLine decodes exactly one pkt-line, returning io.EOF once the
// underlying reader is exhausted with no bytes consumed.
func (d *Decoder) ReadLine() (Line, error) {
	header := make([]byte, HeaderLength)
	n, err := io.ReadFull(d.r, header)
	if err == io.EOF && n == 0 {
		return Line{}, io.EOF
	}
	if err != nil {
		return Line{}, ErrUnderflow
	}
	length, err := strconv.ParseInt(string(header), 16, 32)
	if err != nil {
		return Line{}, ErrInvalidHeader
	}
	if length == 0 {
		return Line{Kind: FlushPkt}, nil
	}
	if length < HeaderLength {
		return Line{}, ErrInvalidLength
	}
	payload := make([]byte, length-HeaderLength)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return Line{}, ErrUnderflow
	}
	return Line{Kind: Data, Payload: payload}, nil
}

// ReadBlock reads data lines until a flush packet or EOF, returning the
// accumulated data payloads.
func (d *Decoder) ReadBlock() ([][]byte, error) {
	var lines [][]byte
	for {
		line, err := d.ReadLine()
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
		if line.Kind == FlushPkt {
			return lines, nil
		}
		lines = append(lines, line.Payload)
	}
}

// bufReader is a minimal byte-counting wrapper so ReadFull-style errors map
// cleanly onto ErrUnderflow regardless of the underlying reader's exact
// error semantics.
type bufReader struct {
	r io.Reader
}

func newBufReader(r io.Reader) *bufReader { return &bufReader{r: r} }

func (b *bufReader) Read(p []byte) (int, error) { return b.r.Read(p) }

// Advertisement builds the smart-HTTP service advertisement: a pkt-line
// "# service=<name>\n", a flush packet, then the upstream advertisement
// bytes (typically itself a pkt-line stream) verbatim.
func Advertisement(service string, upstream []byte) ([]byte, error) {
	enc := NewEncoder()
	if err := enc.AddLine(fmt.Sprintf("# service=%s\n", service)); err != nil {
		return nil, err
	}
	enc.AddFlush()
	out := enc.Bytes()
	out = append(out, upstream...)
	return out, nil
}

// SideBandError builds a side-band error frame: a pkt-line whose payload is
// the side-band-64k error channel byte (0x03) followed by "error: <msg>\n",
// terminated by a flush packet. Git clients treat this as an in-band error
// on an otherwise-200 response.
func SideBandError(message string) ([]byte, error) {
	payload := append([]byte{0x03}, []byte(fmt.Sprintf("error: %s\n", message))...)
	line, err := Encode(payload)
	if err != nil {
		return nil, err
	}
	return append(line, Flush...), nil
}
