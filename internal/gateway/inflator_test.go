package gateway

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compressDocs produces one continuous zlib stream with a sync flush
// after every document, returning the flush-to-flush segments.
func compressDocs(t *testing.T, docs []string) [][]byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)

	var segments [][]byte
	prev := 0
	for _, doc := range docs {
		_, err := zw.Write([]byte(doc))
		require.NoError(t, err)
		require.NoError(t, zw.Flush())
		segments = append(segments, append([]byte(nil), buf.Bytes()[prev:]...))
		prev = buf.Len()
	}
	return segments
}

func TestInflatorWholeSegments(t *testing.T) {
	docs := []string{
		`{"op":10,"d":{"heartbeat_interval":41250}}`,
		`{"op":0,"t":"MESSAGE_CREATE","s":1,"d":{"id":"3"}}`,
		`{"op":11}`,
	}
	z := newInflator()
	for i, seg := range compressDocs(t, docs) {
		out, err := z.Feed(seg)
		require.NoError(t, err)
		assert.Equal(t, docs[i], string(out))
	}
}

func TestInflatorFragmented(t *testing.T) {
	docs := []string{
		`{"op":10,"d":{"heartbeat_interval":41250}}`,
		`{"op":0,"t":"TYPING_START","s":2,"d":{"channel_id":"5"}}`,
	}
	segments := compressDocs(t, docs)

	// Any fragmentation of the byte stream must reassemble to the same
	// documents as feeding whole segments.
	for _, chunk := range []int{1, 2, 3, 5, 7} {
		z := newInflator()
		var got []string
		for _, seg := range segments {
			for i := 0; i < len(seg); i += chunk {
				end := i + chunk
				if end > len(seg) {
					end = len(seg)
				}
				out, err := z.Feed(seg[i:end])
				require.NoError(t, err)
				if out != nil {
					got = append(got, string(out))
				}
			}
		}
		assert.Equal(t, docs, got, "chunk size %d", chunk)
	}
}

func TestInflatorFrameSpanningTwoMessages(t *testing.T) {
	docs := []string{`{"op":11}`, `{"op":1,"d":42}`}
	segments := compressDocs(t, docs)

	// A frame carrying the tail of one message plus the head of the next
	// completes only the first.
	z := newInflator()
	split := len(segments[0]) - 2
	out, err := z.Feed(segments[0][:split])
	require.NoError(t, err)
	require.Nil(t, out)

	frame := append(append([]byte(nil), segments[0][split:]...), segments[1][:3]...)
	// The combined frame no longer ends at the flush trailer, so nothing
	// completes yet.
	out, err = z.Feed(frame)
	require.NoError(t, err)
	require.Nil(t, out)

	out, err = z.Feed(segments[1][3:])
	require.NoError(t, err)
	// Both buffered messages decompress; they arrive concatenated since
	// the accumulated input ends at the second trailer.
	assert.Equal(t, docs[0]+docs[1], string(out))
}

func TestInflatorSharedWindowAcrossMessages(t *testing.T) {
	// Repetitive documents force back-references across the flush
	// boundary, which only decode if the window survives between Feeds.
	long := `{"op":0,"t":"PRESENCE_UPDATE","d":{"status":"online","user":{"id":"1234567890"}}}`
	docs := []string{long, long, long}
	z := newInflator()
	for _, seg := range compressDocs(t, docs) {
		out, err := z.Feed(seg)
		require.NoError(t, err)
		assert.Equal(t, long, string(out))
	}
}

func TestInflatorGarbageInput(t *testing.T) {
	z := newInflator()
	_, err := z.Feed([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00, 0xff, 0xff})
	assert.Error(t, err)
}
