package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// syncFlushSuffix terminates every logical message in the continuously
// compressed gateway stream.
var syncFlushSuffix = []byte{0x00, 0x00, 0xff, 0xff}

// windowSize is the deflate sliding-window span carried across messages.
const windowSize = 32 * 1024

// inflator reassembles the session-scoped zlib stream. Transport frames
// may split one logical message arbitrarily; a message is complete only
// when the accumulated input ends in the sync-flush trailer.
//
// A sync flush aligns the deflate stream to a byte boundary, so each
// flush-to-flush segment decodes as an independent raw-deflate unit as
// long as the sliding window of previously decompressed output is handed
// back in as a preset dictionary. That sidesteps holding a stream reader
// open across Feed calls, which would fail once it out-read its input.
// The window is connection-scoped; a reconnect needs a fresh inflator.
type inflator struct {
	acc    []byte
	window []byte
	opened bool
}

func newInflator() *inflator {
	return &inflator{}
}

// Feed appends a transport frame. It returns nil until a logical message
// is complete, then the decompressed document.
func (z *inflator) Feed(frame []byte) ([]byte, error) {
	z.acc = append(z.acc, frame...)
	if len(z.acc) < len(syncFlushSuffix) || !bytes.HasSuffix(z.acc, syncFlushSuffix) {
		return nil, nil
	}

	seg := z.acc
	z.acc = nil

	if !z.opened {
		// The first segment starts with the 2-byte zlib header. The
		// stream never uses a preset-dictionary header and never ends, so
		// the trailing checksum is never seen.
		if len(seg) < 2 || seg[0]&0x0f != 8 {
			return nil, fmt.Errorf("malformed zlib stream header % x", seg[:min(len(seg), 2)])
		}
		seg = seg[2:]
		z.opened = true
	}

	fr := flate.NewReaderDict(bytes.NewReader(seg), z.window)
	doc, err := io.ReadAll(fr)
	fr.Close()
	// The segment ends at a flush point, not an end-of-stream marker, so
	// the reader runs out of input mid-stream once everything is decoded.
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("couldn't inflate message: %w", err)
	}

	z.slide(doc)
	return doc, nil
}

// slide appends doc to the dictionary window, keeping the last windowSize
// bytes of decompressed history.
func (z *inflator) slide(doc []byte) {
	z.window = append(z.window, doc...)
	if len(z.window) > windowSize {
		z.window = append(z.window[:0], z.window[len(z.window)-windowSize:]...)
	}
}

// Close releases the accumulated state. The inflator must not be fed
// again.
func (z *inflator) Close() error {
	z.acc = nil
	z.window = nil
	z.opened = false
	return nil
}
