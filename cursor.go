package apkparser

import "encoding/binary"

// cursor is a little-endian typed reader over a fully-buffered byte slice.
// resources.arsc is small enough (a few hundred KB to a handful of MB) that
// the teacher's string-pool idiom of reading everything into memory first
// generalizes cleanly to the whole chunk stream: package/type parsing needs
// to seek backwards (key/type string pools, sparse offset tables) far more
// than a one-pass io.Reader can support without re-buffering anyway.
type cursor struct {
	data    []byte
	pos     int
	lenient bool
}

func newCursor(data []byte, lenient bool) *cursor {
	return &cursor{data: data, lenient: lenient}
}

func (c *cursor) len() int       { return len(c.data) }
func (c *cursor) pos_() int      { return c.pos }
func (c *cursor) remaining() int { return len(c.data) - c.pos }

func (c *cursor) seek(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return errf(KindTruncatedChunk, c.pos, "seek to %d out of bounds (len %d)", pos, len(c.data))
	}
	c.pos = pos
	return nil
}

func (c *cursor) skip(n int) error {
	return c.seek(c.pos + n)
}

func (c *cursor) require(n int) error {
	if n < 0 || c.pos+n > len(c.data) {
		return errf(KindTruncatedChunk, c.pos, "need %d bytes, only %d remain", n, c.remaining())
	}
	return nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.require(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) u8() (uint8, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) i32() (int32, error) {
	v, err := c.u32()
	return int32(v), err
}

// alignTo4 enforces the 4-byte alignment ARSC chunks require. In lenient
// mode it rounds up silently instead of failing.
func (c *cursor) alignTo4() error {
	rem := c.pos % 4
	if rem == 0 {
		return nil
	}
	if !c.lenient {
		return errf(KindUnalignedRead, c.pos, "read not 4-byte aligned")
	}
	return c.skip(4 - rem)
}

// chunkHeader is the 8-byte prefix every ARSC/AXML chunk starts with.
type chunkHeader struct {
	Type       uint16
	HeaderSize uint16
	Size       uint32
	Start      int // absolute offset of Type within the buffer
}

func (h chunkHeader) end() int { return h.Start + int(h.Size) }

func (c *cursor) readChunkHeader() (chunkHeader, error) {
	start := c.pos
	typ, err := c.u16()
	if err != nil {
		return chunkHeader{}, err
	}
	hsz, err := c.u16()
	if err != nil {
		return chunkHeader{}, err
	}
	size, err := c.u32()
	if err != nil {
		return chunkHeader{}, err
	}
	if int(size) < int(hsz) || start+int(size) > len(c.data) {
		return chunkHeader{}, errf(KindTruncatedChunk, start, "chunk 0x%04x declares size %d beyond available input", typ, size)
	}
	return chunkHeader{Type: typ, HeaderSize: hsz, Size: size, Start: start}, nil
}

// subCursor returns a cursor scoped to [h.Start+h.HeaderSize, h.end()),
// positioned at its start, for reading a chunk's body.
func (c *cursor) subCursor(h chunkHeader) (*cursor, error) {
	bodyStart := h.Start + int(h.HeaderSize)
	if bodyStart > h.end() || bodyStart > len(c.data) {
		return nil, errf(KindTruncatedChunk, h.Start, "chunk 0x%04x header size %d exceeds total size %d", h.Type, h.HeaderSize, h.Size)
	}
	return &cursor{data: c.data[:h.end()], pos: bodyStart, lenient: c.lenient}, nil
}

// skipToChunkEnd advances the parent cursor past this chunk, regardless of
// how much of its body was actually consumed. This is what lets the parser
// tolerate forward-compatible trailing fields within a chunk.
func (c *cursor) skipToChunkEnd(h chunkHeader) error {
	return c.seek(h.end())
}
