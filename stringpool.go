package apkparser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	stringFlagSorted = 0x00000001
	stringFlagUtf8   = 0x00000100
)

// stringPool decodes an ARSC/AXML string pool chunk (C2): an interned,
// optionally-styled array of strings, either UTF-8 or UTF-16 encoded. Both
// the AXML decoder and the ARSC table decoder share this implementation.
type stringPool struct {
	isUtf8        bool
	stringOffsets []byte
	styleOffsets  []byte
	data          []byte
	styleData     []byte
	cache         map[uint32]string
	spanCache     map[uint32][]StyleSpan
}

// parseStringTableWithChunk reads a whole chunk (header included) off r,
// expecting it to be a string pool. Kept for the AXML decoder, which reads
// chunk-by-chunk off an io.Reader.
func parseStringTableWithChunk(r io.Reader) (res stringPool, err error) {
	id, _, totalLen, err := parseChunkHeader(r)
	if err != nil {
		return
	}

	if id != chunkStringTable {
		err = fmt.Errorf("Invalid chunk id 0x%08x, expected 0x%08x", id, chunkStringTable)
		return
	}

	return parseStringTable(&io.LimitedReader{R: r, N: int64(totalLen - chunkHeaderSize)})
}

// parseStringTable parses a string pool chunk body (header already
// consumed) off an io.LimitedReader, as used by the AXML decoder.
func parseStringTable(r *io.LimitedReader) (stringPool, error) {
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		return stringPool{}, fmt.Errorf("error buffering string pool: %s", err.Error())
	}
	c := newCursor(buf, true)
	return parseStringPoolBody(c, len(buf))
}

// parseStringPoolChunk parses a full string pool chunk (header included)
// from the ARSC decoder's byte cursor, returning a pool and leaving c
// positioned just past the chunk.
//
// Unlike most ARSC chunks, a ResStringPool's declared headerSize (28, the
// sizeof its count/flags/offset fields) covers what parseStringPoolBody
// reads as part of its own "body" -- so this reads directly off c right
// after the generic 8-byte chunk prefix rather than skipping to
// h.HeaderSize first, the way subCursor would.
func parseStringPoolChunk(c *cursor) (*stringPool, error) {
	h, err := c.readChunkHeader()
	if err != nil {
		return nil, err
	}
	if h.Type != chunkStringTable {
		return nil, errf(KindUnknownChunkType, h.Start, "expected string pool chunk, got 0x%04x", h.Type)
	}
	pool, err := parseStringPoolBody(c, h.end()-c.pos_())
	if err != nil {
		return nil, err
	}
	if err := c.skipToChunkEnd(h); err != nil {
		return nil, err
	}
	return &pool, nil
}

// parseStringPoolBody reads the common ResStringPool_header fields (sans
// the 8-byte chunk header) plus the string/style offset tables and their
// backing data, starting at c's current position and reading exactly
// bodyLen bytes.
func parseStringPoolBody(c *cursor, bodyLen int) (stringPool, error) {
	var res stringPool
	start := c.pos_()

	stringCnt, err := c.u32()
	if err != nil {
		return res, err
	}
	styleCnt, err := c.u32()
	if err != nil {
		return res, err
	}
	flags, err := c.u32()
	if err != nil {
		return res, err
	}
	stringsStart, err := c.u32()
	if err != nil {
		return res, err
	}
	stylesStart, err := c.u32()
	if err != nil {
		return res, err
	}

	res.isUtf8 = (flags & stringFlagUtf8) != 0
	flags &^= stringFlagUtf8
	flags &^= stringFlagSorted
	if flags != 0 {
		return res, errf(KindUnsupportedFeature, start, "unknown string pool flag bits 0x%08x", flags)
	}

	if stringCnt >= 2*1024*1024 {
		return res, errf(KindTruncatedChunk, start, "too many strings in pool (%d)", stringCnt)
	}

	offsets, err := c.bytes(4 * int(stringCnt))
	if err != nil {
		return res, err
	}
	res.stringOffsets = append([]byte(nil), offsets...)

	if styleCnt > 0 {
		styleOffsets, err := c.bytes(4 * int(styleCnt))
		if err != nil {
			return res, err
		}
		res.styleOffsets = append([]byte(nil), styleOffsets...)
	}

	// Remaining declared body, from stringsStart through the end of the
	// chunk, is the backing data for strings, then styles. stringsStart and
	// stylesStart count from the start of the chunk, i.e. from the 8-byte
	// chunk header that precedes start.
	chunkStart := start - chunkHeaderSize
	dataStart := chunkStart + int(stringsStart)
	if dataStart < c.pos_() || dataStart > start+bodyLen {
		return res, errf(KindInvalidConfig, start, "string pool data offset %d out of range", stringsStart)
	}
	if err := c.seek(dataStart); err != nil {
		return res, err
	}

	dataEnd := start + bodyLen
	if stylesStart != 0 {
		styleAbs := chunkStart + int(stylesStart)
		if styleAbs < dataStart || styleAbs > dataEnd {
			return res, errf(KindInvalidConfig, start, "style data offset %d out of range", stylesStart)
		}
		strData, err := c.bytes(styleAbs - dataStart)
		if err != nil {
			return res, err
		}
		res.data = append([]byte(nil), strData...)
		styleData, err := c.bytes(dataEnd - styleAbs)
		if err != nil {
			return res, err
		}
		res.styleData = append([]byte(nil), styleData...)
	} else {
		strData, err := c.bytes(dataEnd - dataStart)
		if err != nil {
			return res, err
		}
		res.data = append([]byte(nil), strData...)
	}

	res.cache = make(map[uint32]string)
	res.spanCache = make(map[uint32][]StyleSpan)
	return res, nil
}

func (t *stringPool) parseString16(r io.Reader) (string, error) {
	var strCharacters uint32
	var strCharactersLow, strCharactersHigh uint16

	if err := binary.Read(r, binary.LittleEndian, &strCharactersHigh); err != nil {
		return "", fmt.Errorf("error reading string char count: %s", err.Error())
	}

	if (strCharactersHigh & 0x8000) != 0 {
		if err := binary.Read(r, binary.LittleEndian, &strCharactersLow); err != nil {
			return "", fmt.Errorf("error reading string char count: %s", err.Error())
		}
		strCharacters = (uint32(strCharactersHigh&0x7FFF) << 16) | uint32(strCharactersLow)
	} else {
		strCharacters = uint32(strCharactersHigh)
	}

	buf := make([]uint16, int64(strCharacters))
	if err := binary.Read(r, binary.LittleEndian, &buf); err != nil {
		return "", fmt.Errorf("error reading string : %s", err.Error())
	}

	decoded := utf16.Decode(buf)
	for len(decoded) != 0 && decoded[len(decoded)-1] == 0 {
		decoded = decoded[:len(decoded)-1]
	}

	return string(decoded), nil
}

func (t *stringPool) parseString8Len(r io.Reader) (int64, error) {
	var strCharacters int64
	var strCharactersLow, strCharactersHigh uint8

	if err := binary.Read(r, binary.LittleEndian, &strCharactersHigh); err != nil {
		return 0, fmt.Errorf("error reading string char count: %s", err.Error())
	}

	if (strCharactersHigh & 0x80) != 0 {
		if err := binary.Read(r, binary.LittleEndian, &strCharactersLow); err != nil {
			return 0, fmt.Errorf("error reading string char count: %s", err.Error())
		}
		strCharacters = (int64(strCharactersHigh&0x7F) << 8) | int64(strCharactersLow)
	} else {
		strCharacters = int64(strCharactersHigh)
	}
	return strCharacters, nil
}

func (t *stringPool) parseString8(r io.Reader) (string, error) {
	// Length of the string in UTF16 (unused, strings are re-measured in UTF8)
	_, err := t.parseString8Len(r)
	if err != nil {
		return "", err
	}

	len8, err := t.parseString8Len(r)
	if err != nil {
		return "", err
	}

	buf := make([]uint8, len8)
	if err := binary.Read(r, binary.LittleEndian, &buf); err != nil {
		return "", fmt.Errorf("error reading string : %s", err.Error())
	}

	for len(buf) != 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}

	return string(buf), nil
}

// get looks up string idx, returning the sentinel empty string (and, in
// strict mode, an error) when idx is out of range.
func (t *stringPool) get(idx uint32) (string, error) {
	return t.getStrict(idx, true)
}

func (t *stringPool) getStrict(idx uint32, strict bool) (string, error) {
	if idx == math.MaxUint32 {
		return "", nil
	} else if idx >= uint32(len(t.stringOffsets)/4) {
		if strict {
			return "", errf(KindStringPoolIndexOutOfRange, 0, "string index %d not found (pool has %d entries)", idx, len(t.stringOffsets)/4)
		}
		return "", nil
	}

	if str, prs := t.cache[idx]; prs {
		return str, nil
	}

	offset := binary.LittleEndian.Uint32(t.stringOffsets[4*idx : 4*idx+4])
	if offset >= uint32(len(t.data)) {
		return "", errf(KindStringPoolIndexOutOfRange, 0, "string offset for idx %d is out of bounds (%d >= %d)", idx, offset, len(t.data))
	}

	r := bytes.NewReader(t.data[offset:])

	var err error
	var res string
	if t.isUtf8 {
		res, err = t.parseString8(r)
	} else {
		res, err = t.parseString16(r)
	}

	if err != nil {
		return "", err
	}

	if !utf8.ValidString(res) || strings.ContainsRune(res, 0) {
		res = strings.Map(func(r rune) rune {
			switch r {
			case 0, utf8.RuneError:
				return '￾'
			default:
				return r
			}
		}, res)
	}

	t.cache[idx] = res
	return res, nil
}

// styles returns the style spans attached to string idx, if any. Spans
// are a sequence of (name_ref uint32, first_char uint32, last_char uint32)
// triples terminated by 0xFFFFFFFF in the name_ref slot.
func (t *stringPool) styles(idx uint32) ([]StyleSpan, error) {
	if t.styleOffsets == nil || idx >= uint32(len(t.styleOffsets)/4) {
		return nil, nil
	}
	if spans, ok := t.spanCache[idx]; ok {
		return spans, nil
	}

	offset := binary.LittleEndian.Uint32(t.styleOffsets[4*idx : 4*idx+4])
	if offset == math.MaxUint32 || offset >= uint32(len(t.styleData)) {
		return nil, nil
	}

	r := bytes.NewReader(t.styleData[offset:])
	var spans []StyleSpan
	for {
		var nameRef, first, last uint32
		if err := binary.Read(r, binary.LittleEndian, &nameRef); err != nil {
			return nil, fmt.Errorf("error reading style span name ref: %s", err.Error())
		}
		if nameRef == math.MaxUint32 {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &first); err != nil {
			return nil, fmt.Errorf("error reading style span start: %s", err.Error())
		}
		if err := binary.Read(r, binary.LittleEndian, &last); err != nil {
			return nil, fmt.Errorf("error reading style span end: %s", err.Error())
		}
		name, err := t.get(nameRef)
		if err != nil {
			return nil, err
		}
		spans = append(spans, StyleSpan{Name: name, FirstChar: first, LastChar: last})
	}

	t.spanCache[idx] = spans
	return spans, nil
}

func (t *stringPool) isEmpty() bool {
	return t.cache == nil
}

func (t *stringPool) count() int { return len(t.stringOffsets) / 4 }
