package apkparser

import "encoding/binary"

func u16b(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func u32b(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// buildUTF8Pool assembles a full ResStringPool chunk (8-byte generic header
// plus the 20-byte count/flags/offset header, matching a real aapt-produced
// pool) holding strs, UTF-8 encoded, with no style data.
func buildUTF8Pool(strs []string) []byte {
	var offsets, data []byte
	for _, s := range strs {
		offsets = append(offsets, u32b(uint32(len(data)))...)
		n := len(s)
		data = append(data, byte(n), byte(n))
		data = append(data, []byte(s)...)
		data = append(data, 0)
	}

	const subHeaderSize = 20 // stringCount, styleCount, flags, stringsStart, stylesStart
	stringsStart := uint32(8 + subHeaderSize + len(offsets)) // from the chunk start

	body := append([]byte{}, u32b(uint32(len(strs)))...)
	body = append(body, u32b(0)...)
	body = append(body, u32b(stringFlagUtf8)...)
	body = append(body, u32b(stringsStart)...)
	body = append(body, u32b(0)...)
	body = append(body, offsets...)
	body = append(body, data...)

	const headerSize = 8 + subHeaderSize
	total := 8 + len(body)
	if pad := (4 - total%4) % 4; pad != 0 {
		body = append(body, make([]byte, pad)...)
		total += pad
	}

	chunk := append([]byte{}, u16b(chunkStringTable)...)
	chunk = append(chunk, u16b(headerSize)...)
	chunk = append(chunk, u32b(uint32(total))...)
	chunk = append(chunk, body...)
	return chunk
}
