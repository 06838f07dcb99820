package apkparser_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	apkparser "github.com/apktool-go/restable"
)

// Chunk type constants, mirrored locally since the package under test keeps
// them unexported; values per frameworks/base's ResourceTypes.h.
const (
	tChunkStringTable   = 0x0001
	tChunkTable         = 0x0002
	tChunkTablePackage  = 0x0200
	tChunkTableType     = 0x0201
	tChunkTableTypeSpec = 0x0202
)

func tu16(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
func tu32(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }

func tUTF8Pool(strs []string) []byte {
	var offsets, data []byte
	for _, s := range strs {
		offsets = append(offsets, tu32(uint32(len(data)))...)
		n := len(s)
		data = append(data, byte(n), byte(n))
		data = append(data, []byte(s)...)
		data = append(data, 0)
	}
	const subHeader = 20 // stringCount, styleCount, flags, stringsStart, stylesStart
	stringsStart := uint32(8 + subHeader + len(offsets)) // from the chunk start

	body := append([]byte{}, tu32(uint32(len(strs)))...)
	body = append(body, tu32(0)...)
	body = append(body, tu32(0x100)...) // UTF8 flag
	body = append(body, tu32(stringsStart)...)
	body = append(body, tu32(0)...)
	body = append(body, offsets...)
	body = append(body, data...)

	const headerSize = 8 + subHeader
	total := 8 + len(body)
	if pad := (4 - total%4) % 4; pad != 0 {
		body = append(body, make([]byte, pad)...)
		total += pad
	}

	chunk := append([]byte{}, tu16(tChunkStringTable)...)
	chunk = append(chunk, tu16(headerSize)...)
	chunk = append(chunk, tu32(uint32(total))...)
	chunk = append(chunk, body...)
	return chunk
}

func tPackageName(name string, total int) []byte {
	out := make([]byte, total)
	for i, r := range []rune(name) {
		if i*2+1 >= total {
			break
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(r))
	}
	return out
}

// buildPackageChunk assembles a Package (0x0200) chunk with one "string"
// typed resource named "app_name", valued as a reference into the table's
// global string pool at index 0.
func buildPackageChunk(name string, id uint32) []byte {
	typeStrings := tUTF8Pool([]string{"string"})
	keyStrings := tUTF8Pool([]string{"app_name"})

	// TypeSpec chunk: id=1, entryCount=1, flags=[0]
	const typeSpecHeaderSize = 8 + 1 + 1 + 2 + 4
	typeSpecBody := append([]byte{1, 0}, tu16(0)...) // id, res0, res1
	typeSpecBody = append(typeSpecBody, tu32(1)...)  // entryCount
	typeSpecBody = append(typeSpecBody, tu32(0)...)  // flags[0]
	typeSpecTotal := 8 + len(typeSpecBody)
	typeSpecChunk := append([]byte{}, tu16(tChunkTableTypeSpec)...)
	typeSpecChunk = append(typeSpecChunk, tu16(typeSpecHeaderSize)...)
	typeSpecChunk = append(typeSpecChunk, tu32(uint32(typeSpecTotal))...)
	typeSpecChunk = append(typeSpecChunk, typeSpecBody...)

	// Type chunk: id=1, dense, one default-config entry.
	configBlock := tu32(4) // size=4: zero-length (default) config body
	typeHeaderSize := 8 + 1 + 1 + 2 + 4 + 4 + len(configBlock)
	entriesStart := typeHeaderSize + 4 // + one dense offset word

	entry := append([]byte{}, tu16(8)...) // entry size
	entry = append(entry, tu16(0)...)     // flags: simple
	entry = append(entry, tu32(0)...)     // key index 0 ("app_name")
	valueRec := append([]byte{}, tu16(8)...)
	valueRec = append(valueRec, 0, 0x03) // res0, type=AttrTypeString
	valueRec = append(valueRec, tu32(0)...)
	entry = append(entry, valueRec...)

	typeTotal := typeHeaderSize + 4 + len(entry)
	typeChunk := append([]byte{}, tu16(tChunkTableType)...)
	typeChunk = append(typeChunk, tu16(uint16(typeHeaderSize))...)
	typeChunk = append(typeChunk, tu32(uint32(typeTotal))...)
	typeChunk = append(typeChunk, 1, 0) // id=1, flags=0 (dense)
	typeChunk = append(typeChunk, tu16(0)...)
	typeChunk = append(typeChunk, tu32(1)...) // entryCount
	typeChunk = append(typeChunk, tu32(uint32(entriesStart))...)
	typeChunk = append(typeChunk, configBlock...)
	typeChunk = append(typeChunk, tu32(0)...) // dense offset[0] = 0
	typeChunk = append(typeChunk, entry...)

	const pkgBodySize = 4 + 256 + 4 + 4 + 4 + 4
	pkgHeaderSize := 8 + pkgBodySize
	typeStringsOffset := pkgHeaderSize
	keyStringsOffset := typeStringsOffset + len(typeStrings)

	pkgBody := append([]byte{}, tu32(id)...)
	pkgBody = append(pkgBody, tPackageName(name, 256)...)
	pkgBody = append(pkgBody, tu32(uint32(typeStringsOffset))...)
	pkgBody = append(pkgBody, tu32(0)...) // lastPublicType
	pkgBody = append(pkgBody, tu32(uint32(keyStringsOffset))...)
	pkgBody = append(pkgBody, tu32(0)...) // lastPublicKey

	pkgTotal := pkgHeaderSize + len(typeStrings) + len(keyStrings) + len(typeSpecChunk) + len(typeChunk)
	pkgChunk := append([]byte{}, tu16(tChunkTablePackage)...)
	pkgChunk = append(pkgChunk, tu16(uint16(pkgHeaderSize))...)
	pkgChunk = append(pkgChunk, tu32(uint32(pkgTotal))...)
	pkgChunk = append(pkgChunk, pkgBody...)
	pkgChunk = append(pkgChunk, typeStrings...)
	pkgChunk = append(pkgChunk, keyStrings...)
	pkgChunk = append(pkgChunk, typeSpecChunk...)
	pkgChunk = append(pkgChunk, typeChunk...)
	return pkgChunk
}

// buildEmptyPackageChunk assembles a Package chunk with empty type/key
// string pools and no resource types at all, used to exercise the
// "android"/"com.htc" package-selection skip without any decodeEntry work.
func buildEmptyPackageChunk(name string, id uint32) []byte {
	typeStrings := tUTF8Pool(nil)
	keyStrings := tUTF8Pool(nil)

	const pkgBodySize = 4 + 256 + 4 + 4 + 4 + 4
	pkgHeaderSize := 8 + pkgBodySize
	typeStringsOffset := pkgHeaderSize
	keyStringsOffset := typeStringsOffset + len(typeStrings)

	pkgBody := append([]byte{}, tu32(id)...)
	pkgBody = append(pkgBody, tPackageName(name, 256)...)
	pkgBody = append(pkgBody, tu32(uint32(typeStringsOffset))...)
	pkgBody = append(pkgBody, tu32(0)...)
	pkgBody = append(pkgBody, tu32(uint32(keyStringsOffset))...)
	pkgBody = append(pkgBody, tu32(0)...)

	pkgTotal := pkgHeaderSize + len(typeStrings) + len(keyStrings)
	pkgChunk := append([]byte{}, tu16(tChunkTablePackage)...)
	pkgChunk = append(pkgChunk, tu16(uint16(pkgHeaderSize))...)
	pkgChunk = append(pkgChunk, tu32(uint32(pkgTotal))...)
	pkgChunk = append(pkgChunk, pkgBody...)
	pkgChunk = append(pkgChunk, typeStrings...)
	pkgChunk = append(pkgChunk, keyStrings...)
	return pkgChunk
}

// buildMultiTypePackageChunk assembles a Package chunk with two resource
// types -- a "string" named "app_name" (referencing the table's global
// string pool) and an "integer" named "count" (a plain IntDec value) -- to
// exercise EmitValues splitting resources into separate per-type buckets.
func buildMultiTypePackageChunk(name string, id uint32) []byte {
	typeStrings := tUTF8Pool([]string{"string", "integer"})
	keyStrings := tUTF8Pool([]string{"app_name", "count"})

	buildTypeSpec := func(typeID uint8) []byte {
		const headerSize = 8 + 1 + 1 + 2 + 4
		body := append([]byte{typeID, 0}, tu16(0)...)
		body = append(body, tu32(1)...) // entryCount
		body = append(body, tu32(0)...) // flags[0]
		total := 8 + len(body)
		chunk := append([]byte{}, tu16(tChunkTableTypeSpec)...)
		chunk = append(chunk, tu16(headerSize)...)
		chunk = append(chunk, tu32(uint32(total))...)
		chunk = append(chunk, body...)
		return chunk
	}

	buildTypeChunk := func(typeID uint8, keyIdx uint32, valueType byte, valueData uint32) []byte {
		configBlock := tu32(4)
		headerSize := 8 + 1 + 1 + 2 + 4 + 4 + len(configBlock)
		entriesStart := headerSize + 4

		entry := append([]byte{}, tu16(8)...)
		entry = append(entry, tu16(0)...)
		entry = append(entry, tu32(keyIdx)...)
		valueRec := append([]byte{}, tu16(8)...)
		valueRec = append(valueRec, 0, valueType)
		valueRec = append(valueRec, tu32(valueData)...)
		entry = append(entry, valueRec...)

		total := headerSize + 4 + len(entry)
		chunk := append([]byte{}, tu16(tChunkTableType)...)
		chunk = append(chunk, tu16(uint16(headerSize))...)
		chunk = append(chunk, tu32(uint32(total))...)
		chunk = append(chunk, typeID, 0)
		chunk = append(chunk, tu16(0)...)
		chunk = append(chunk, tu32(1)...)
		chunk = append(chunk, tu32(uint32(entriesStart))...)
		chunk = append(chunk, configBlock...)
		chunk = append(chunk, tu32(0)...)
		chunk = append(chunk, entry...)
		return chunk
	}

	typeSpec1 := buildTypeSpec(1)
	typeSpec2 := buildTypeSpec(2)
	typeChunk1 := buildTypeChunk(1, 0, 0x03, 0) // string, key "app_name", value = global pool index 0 ("Hello")
	typeChunk2 := buildTypeChunk(2, 1, 0x10, 42) // integer (AttrTypeIntDec), key "count", value 42

	const pkgBodySize = 4 + 256 + 4 + 4 + 4 + 4
	pkgHeaderSize := 8 + pkgBodySize
	typeStringsOffset := pkgHeaderSize
	keyStringsOffset := typeStringsOffset + len(typeStrings)

	pkgBody := append([]byte{}, tu32(id)...)
	pkgBody = append(pkgBody, tPackageName(name, 256)...)
	pkgBody = append(pkgBody, tu32(uint32(typeStringsOffset))...)
	pkgBody = append(pkgBody, tu32(0)...)
	pkgBody = append(pkgBody, tu32(uint32(keyStringsOffset))...)
	pkgBody = append(pkgBody, tu32(0)...)

	pkgTotal := pkgHeaderSize + len(typeStrings) + len(keyStrings) + len(typeSpec1) + len(typeSpec2) + len(typeChunk1) + len(typeChunk2)
	pkgChunk := append([]byte{}, tu16(tChunkTablePackage)...)
	pkgChunk = append(pkgChunk, tu16(uint16(pkgHeaderSize))...)
	pkgChunk = append(pkgChunk, tu32(uint32(pkgTotal))...)
	pkgChunk = append(pkgChunk, pkgBody...)
	pkgChunk = append(pkgChunk, typeStrings...)
	pkgChunk = append(pkgChunk, keyStrings...)
	pkgChunk = append(pkgChunk, typeSpec1...)
	pkgChunk = append(pkgChunk, typeSpec2...)
	pkgChunk = append(pkgChunk, typeChunk1...)
	pkgChunk = append(pkgChunk, typeChunk2...)
	return pkgChunk
}

func buildTable(pkgChunks ...[]byte) []byte {
	globalStrings := tUTF8Pool([]string{"Hello"})

	const tableHeaderSize = 12
	total := tableHeaderSize + len(globalStrings)
	for _, p := range pkgChunks {
		total += len(p)
	}

	table := append([]byte{}, tu16(tChunkTable)...)
	table = append(table, tu16(tableHeaderSize)...)
	table = append(table, tu32(uint32(total))...)
	table = append(table, tu32(uint32(len(pkgChunks)))...)
	table = append(table, globalStrings...)
	for _, p := range pkgChunks {
		table = append(table, p...)
	}
	return table
}

func TestParseResourceTableBytesMinimal(t *testing.T) {
	data := buildTable(buildPackageChunk("com.example.app", 0x7f))

	table, err := apkparser.ParseResourceTableBytes(context.Background(), data, apkparser.Options{})
	if err != nil {
		t.Fatalf("ParseResourceTableBytes: %v", err)
	}

	pkgs := table.Packages()
	if len(pkgs) != 1 || pkgs[0].Name != "com.example.app" || pkgs[0].ID != 0x7f {
		t.Fatalf("unexpected packages: %+v", pkgs)
	}

	main := table.ListMainPackages()
	if len(main) != 1 || main[0] != pkgs[0] {
		t.Fatalf("expected the single package to be selected as main, got %+v", main)
	}

	id := apkparser.NewResID(0x7f, 1, 0)
	entry, err := table.GetResourceEntry(uint32(id))
	if err != nil {
		t.Fatalf("GetResourceEntry: %v", err)
	}
	s, err := entry.String()
	if err != nil {
		t.Fatalf("entry.String(): %v", err)
	}
	if s != "Hello" {
		t.Errorf("resolved value = %q, want %q", s, "Hello")
	}
	if entry.Spec.DisplayName() != "app_name" {
		t.Errorf("spec display name = %q, want %q", entry.Spec.DisplayName(), "app_name")
	}

	ref, err := table.DecodeReference(id, false)
	if err != nil {
		t.Fatalf("DecodeReference: %v", err)
	}
	if ref.ResolvedName != "@com.example.app:string/app_name" {
		t.Errorf("DecodeReference = %q, want %q", ref.ResolvedName, "@com.example.app:string/app_name")
	}
}

func TestSelectMainPackagesSkipsAndroid(t *testing.T) {
	data := buildTable(
		buildEmptyPackageChunk("android", 0x01),
		buildPackageChunk("com.example.app", 0x7f),
	)

	table, err := apkparser.ParseResourceTableBytes(context.Background(), data, apkparser.Options{})
	if err != nil {
		t.Fatalf("ParseResourceTableBytes: %v", err)
	}
	if len(table.Packages()) != 2 {
		t.Fatalf("expected 2 decoded packages, got %d", len(table.Packages()))
	}

	main := table.ListMainPackages()
	if len(main) != 1 || main[0].Name != "com.example.app" {
		t.Fatalf("expected com.example.app to be selected as main, got %+v", main)
	}
}

func TestPublicizeTableIsIdempotent(t *testing.T) {
	data := buildTable(buildPackageChunk("com.example.app", 0x7f))

	table, err := apkparser.ParseResourceTableBytes(context.Background(), data, apkparser.Options{})
	if err != nil {
		t.Fatalf("ParseResourceTableBytes: %v", err)
	}

	once := table.PublicizeTable()
	if bytes.Equal(once, data) {
		t.Fatalf("PublicizeTable should flip at least one flag bit")
	}

	again, err := apkparser.ParseResourceTableBytes(context.Background(), once, apkparser.Options{})
	if err != nil {
		t.Fatalf("re-parsing publicized table: %v", err)
	}
	twice := again.PublicizeTable()
	if !bytes.Equal(twice, once) {
		t.Fatalf("publicizing an already-public table should be a no-op")
	}
}

func TestEmitPublicXMLAndValues(t *testing.T) {
	data := buildTable(buildPackageChunk("com.example.app", 0x7f))
	table, err := apkparser.ParseResourceTableBytes(context.Background(), data, apkparser.Options{})
	if err != nil {
		t.Fatalf("ParseResourceTableBytes: %v", err)
	}

	pub, err := apkparser.EmitPublicXML(table)
	if err != nil {
		t.Fatalf("EmitPublicXML: %v", err)
	}
	if !strings.Contains(string(pub), `type="string"`) || !strings.Contains(string(pub), `name="app_name"`) {
		t.Errorf("public.xml missing expected entry: %s", pub)
	}

	for _, pkg := range table.ListMainPackages() {
		docs, err := apkparser.EmitValues(table, pkg)
		if err != nil {
			t.Fatalf("EmitValues: %v", err)
		}
		if len(docs) != 1 {
			t.Fatalf("expected exactly one values document (default config), got %d", len(docs))
		}
		if !strings.Contains(string(docs[0].XML), "<string name=\"app_name\">Hello</string>") {
			t.Errorf("values.xml missing expected string resource: %s", docs[0].XML)
		}
	}
}

func TestEmitValuesSplitsByTypeBucket(t *testing.T) {
	data := buildTable(buildMultiTypePackageChunk("com.example.app", 0x7f))
	table, err := apkparser.ParseResourceTableBytes(context.Background(), data, apkparser.Options{})
	if err != nil {
		t.Fatalf("ParseResourceTableBytes: %v", err)
	}

	pkg := table.ListMainPackages()[0]
	docs, err := apkparser.EmitValues(table, pkg)
	if err != nil {
		t.Fatalf("EmitValues: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected one document per type bucket, got %d: %+v", len(docs), docs)
	}

	byBucket := map[string]apkparser.ValuesDocument{}
	for _, d := range docs {
		byBucket[d.Bucket] = d
	}

	strDoc, ok := byBucket["strings"]
	if !ok {
		t.Fatalf("missing \"strings\" bucket, got buckets %v", byBucket)
	}
	if !strings.Contains(string(strDoc.XML), "<string name=\"app_name\">Hello</string>") {
		t.Errorf("strings bucket missing expected resource: %s", strDoc.XML)
	}
	if strings.Contains(string(strDoc.XML), "count") {
		t.Errorf("strings bucket should not contain the integer resource: %s", strDoc.XML)
	}

	intDoc, ok := byBucket["integers"]
	if !ok {
		t.Fatalf("missing \"integers\" bucket, got buckets %v", byBucket)
	}
	if !strings.Contains(string(intDoc.XML), "<integer name=\"count\">42</integer>") {
		t.Errorf("integers bucket missing expected resource: %s", intDoc.XML)
	}
}
