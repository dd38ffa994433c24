// Package sse reassembles "data: <json>" lines from an incrementally
// delivered response body.
package sse

import (
	"bytes"
	"errors"
)

const DefaultMaxLineBytes = 1 << 20

var ErrLineTooLong = errors.New("sse line exceeds max bytes")

// Frame is the payload of one data line, without the "data:" prefix.
type Frame struct {
	Data []byte
}

// Decoder splits chunks on newlines and holds back the trailing, possibly
// incomplete, line until the next chunk or Flush.
type Decoder struct {
	buf []byte
	// scanned bytes at the front of buf are known to hold no newline
	scanned      int
	maxLineBytes int
}

func NewDecoder() *Decoder {
	return &Decoder{maxLineBytes: DefaultMaxLineBytes}
}

func (d *Decoder) SetMaxLineBytes(n int) {
	if n <= 0 {
		d.maxLineBytes = DefaultMaxLineBytes
		return
	}
	d.maxLineBytes = n
}

// Feed appends a chunk and returns every frame completed by it. Once the
// held-back partial line grows past the limit it is dropped and
// ErrLineTooLong is returned along with the frames decoded so far.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	start, from := 0, d.scanned
	for {
		i := bytes.IndexByte(d.buf[from:], '\n')
		if i < 0 {
			break
		}
		end := from + i
		if f, ok := parseLine(d.buf[start:end]); ok {
			frames = append(frames, f)
		}
		start = end + 1
		from = start
	}

	if len(d.buf)-start > d.maxLineBytes {
		d.buf, d.scanned = nil, 0
		return frames, ErrLineTooLong
	}
	// Move the partial line to the front only when lines were consumed;
	// frames own their payload, so the array can be reused.
	if start > 0 {
		n := copy(d.buf, d.buf[start:])
		d.buf = d.buf[:n]
	}
	d.scanned = len(d.buf)
	return frames, nil
}

// Flush returns the final frame when the stream ended without a trailing
// newline.
func (d *Decoder) Flush() []Frame {
	rest := d.buf
	d.buf, d.scanned = nil, 0
	if f, ok := parseLine(rest); ok {
		return []Frame{f}
	}
	return nil
}

// Pending reports how many bytes are held back.
func (d *Decoder) Pending() int { return len(d.buf) }

var dataPrefix = []byte("data:")

func parseLine(line []byte) (Frame, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, dataPrefix) {
		// event:, id:, retry:, ":" comments and blank separators
		return Frame{}, false
	}
	payload := line[len(dataPrefix):]
	payload = bytes.TrimPrefix(payload, []byte(" "))
	if len(bytes.TrimSpace(payload)) == 0 {
		return Frame{}, false
	}
	return Frame{Data: append([]byte(nil), payload...)}, true
}
