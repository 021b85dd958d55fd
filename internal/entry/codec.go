package entry

import (
	"encoding/binary"
	"fmt"
)

// codecWriter builds the deterministic length-prefixed binary encoding
// cache records are stored in: each field is a uint32 big-endian length
// followed by its raw bytes, in declaration order, payload last. No
// reflection.
type codecWriter struct {
	buf []byte
}

func newCodecWriter() *codecWriter {
	return &codecWriter{buf: make([]byte, 0, 256)}
}

func (w *codecWriter) writeString(s string) {
	w.writeBytes([]byte(s))
}

func (w *codecWriter) writeBytes(b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.buf = append(w.buf, lenBuf[:]...)
	w.buf = append(w.buf, b...)
}

func (w *codecWriter) Bytes() []byte { return w.buf }

// codecReader parses a stream written by codecWriter.
type codecReader struct {
	buf []byte
	pos int
}

func newCodecReader(b []byte) *codecReader {
	return &codecReader{buf: b}
}

func (r *codecReader) readBytes() ([]byte, error) {
	if r.pos+4 > len(r.buf) {
		return nil, fmt.Errorf("entry codec: truncated length prefix at offset %d", r.pos)
	}
	n := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	end := r.pos + int(n)
	if end > len(r.buf) || end < r.pos {
		return nil, fmt.Errorf("entry codec: truncated field at offset %d (want %d bytes)", r.pos, n)
	}
	out := r.buf[r.pos:end]
	r.pos = end
	return out, nil
}

func (r *codecReader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
