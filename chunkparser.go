package apkparser

import (
	"context"
	"strings"
	"unicode/utf16"
)

// decode drives the top-level chunk walk described in spec.md §4.5: a
// Table chunk containing the global value string pool followed by
// package_count Package chunks, each of which recurses into TypeSpec/Type/
// Library/StagedAlias/Overlayable chunks.
func (t *ResourceTable) decode(ctx context.Context) error {
	c := newCursor(t.raw, t.Options.lenient())

	h, err := c.readChunkHeader()
	if err != nil {
		return err
	}
	if h.Type != chunkTable {
		return errf(KindUnknownChunkType, h.Start, "expected table chunk 0x%04x, got 0x%04x", chunkTable, h.Type)
	}

	packageCount, err := c.u32()
	if err != nil {
		return err
	}
	if err := c.seek(h.Start + int(h.HeaderSize)); err != nil {
		return err
	}

	var globalStrings *stringPool
	seenPackages := 0

	for c.pos_() < h.end() {
		if err := ctx.Err(); err != nil {
			if t.Options.lenient() {
				t.Incomplete = true
				return nil
			}
			return newErr(KindCancelled, c.pos_(), "decode cancelled", err)
		}

		sub, err := c.readChunkHeader()
		if err != nil {
			if t.Options.lenient() {
				break
			}
			return err
		}

		switch sub.Type {
		case chunkStringTable:
			if globalStrings != nil {
				// Forward-compat: ignore any further top-level string
				// pools rather than clobbering the first.
				if err := c.skipToChunkEnd(sub); err != nil {
					return err
				}
				continue
			}
			pool, err := t.parseGlobalStrings(c, sub)
			if err != nil {
				if !t.Options.lenient() {
					return err
				}
				t.noteError(err)
			}
			globalStrings = pool
		case chunkTablePackage:
			pkg, err := parsePackage(c, sub, globalStrings, t.Options)
			if err != nil {
				if !t.Options.lenient() {
					return err
				}
				t.noteError(err)
				if err := c.skipToChunkEnd(sub); err != nil {
					return err
				}
				continue
			}
			seenPackages++
			t.AddPackage(pkg, false)
		default:
			if !t.Options.lenient() {
				return errf(KindUnknownChunkType, sub.Start, "unexpected top-level chunk 0x%04x", sub.Type)
			}
		}

		if err := c.skipToChunkEnd(sub); err != nil {
			if !t.Options.lenient() {
				return err
			}
			break
		}
		if err := c.alignTo4(); err != nil {
			return err
		}
	}

	_ = packageCount // informational; the chunk walk itself determines how many were actually decoded
	return nil
}

// parseGlobalStrings reads the table-level value string pool chunk whose
// header was already consumed into sub.
func (t *ResourceTable) parseGlobalStrings(c *cursor, h chunkHeader) (*stringPool, error) {
	if err := c.seek(h.Start); err != nil {
		return nil, err
	}
	return parseStringPoolChunk(c)
}

// parsePackage decodes one Package (0x0200) chunk: its header, type/key
// string pools, and the TypeSpec/Type/Library/Overlayable/StagedAlias
// chunks nested within it.
func parsePackage(c *cursor, h chunkHeader, globalStrings *stringPool, opts Options) (*Package, error) {
	id32, err := c.u32()
	if err != nil {
		return nil, err
	}
	if id32 == 0 && !opts.SharedLibrary {
		return nil, errf(KindInvalidConfig, h.Start, "package id 0 requires SharedLibrary option")
	}
	nameBytes, err := c.bytes(128 * 2)
	if err != nil {
		return nil, err
	}
	name := decodePackageName(nameBytes)

	typeStringsOffset, err := c.u32()
	if err != nil {
		return nil, err
	}
	_, err = c.u32() // lastPublicType
	if err != nil {
		return nil, err
	}
	keyStringsOffset, err := c.u32()
	if err != nil {
		return nil, err
	}
	_, err = c.u32() // lastPublicKey
	if err != nil {
		return nil, err
	}

	// Optional typeIdOffset, present only when the chunk's declared
	// header size extends past the fields read above (shared-library /
	// aapt2-produced tables).
	if h.Start+int(h.HeaderSize) >= c.pos_()+4 {
		if _, err := c.u32(); err != nil {
			return nil, err
		}
	}

	pkg := newPackage(uint8(id32), name)

	if err := c.seek(h.Start + int(typeStringsOffset)); err != nil {
		return nil, err
	}
	typeStrings, err := parseStringPoolChunk(c)
	if err != nil {
		return nil, err
	}
	pkg.TypeStrings = typeStrings

	if err := c.seek(h.Start + int(keyStringsOffset)); err != nil {
		return nil, err
	}
	keyStrings, err := parseStringPoolChunk(c)
	if err != nil {
		return nil, err
	}
	pkg.KeyStrings = keyStrings

	if err := c.seek(h.Start + int(h.HeaderSize)); err != nil {
		return nil, err
	}

	for c.pos_() < h.end() {
		sub, err := c.readChunkHeader()
		if err != nil {
			if opts.lenient() {
				break
			}
			return nil, err
		}

		switch sub.Type {
		case chunkStringTable:
			// Already consumed above (type/key pools); skip any other
			// string pool nested here (forward-compat).
		case chunkTableTypeSpec:
			if err := parseTypeSpecChunk(c, sub, pkg); err != nil && !opts.lenient() {
				return nil, err
			}
		case chunkTableType:
			if err := parseTypeChunk(c, sub, pkg, globalStrings, opts); err != nil && !opts.lenient() {
				return nil, err
			}
		case chunkTableLibrary:
			if err := parseLibraryChunk(c, sub, pkg); err != nil && !opts.lenient() {
				return nil, err
			}
		case chunkTableOverlayable:
			if err := parseOverlayableChunk(c, sub, pkg); err != nil && !opts.lenient() {
				return nil, err
			}
		case chunkTableOverlayablePolicy:
			// Skipped: policy chunks are not recorded anywhere.
			// parseOverlayableChunk keeps only each group's name and actor.
		case chunkTableStagedAlias:
			if err := parseStagedAliasChunk(c, sub, pkg); err != nil && !opts.lenient() {
				return nil, err
			}
		default:
			if !opts.lenient() {
				return nil, errf(KindUnknownChunkType, sub.Start, "unexpected chunk 0x%04x in package", sub.Type)
			}
		}

		if err := c.skipToChunkEnd(sub); err != nil {
			if !opts.lenient() {
				return nil, err
			}
			break
		}
		if err := c.alignTo4(); err != nil {
			return nil, err
		}
	}

	return pkg, nil
}

func decodePackageName(b []byte) string {
	u16s := make([]uint16, len(b)/2)
	for i := range u16s {
		u16s[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	n := len(u16s)
	for n > 0 && u16s[n-1] == 0 {
		n--
	}
	return string(utf16.Decode(u16s[:n]))
}

// parseTypeSpecChunk reads a TypeSpec (0x0202) chunk: the per-entry
// configuration-change flags array for one resource type. Subsequent
// TypeSpec chunks for the same id (rare, but forward-compat) merge their
// flags into the existing array rather than replacing it.
func parseTypeSpecChunk(c *cursor, h chunkHeader, pkg *Package) error {
	id, err := c.u8()
	if err != nil {
		return err
	}
	if _, err := c.u8(); err != nil { // res0
		return err
	}
	if _, err := c.u16(); err != nil { // res1
		return err
	}
	entryCount, err := c.u32()
	if err != nil {
		return err
	}

	typeName := ""
	if pkg.TypeStrings != nil && id > 0 {
		typeName, _ = pkg.TypeStrings.getStrict(uint32(id)-1, false)
	}

	ts := pkg.getOrCreateTypeSpec(id, typeName)
	if ts.Name == "" {
		ts.Name = typeName
	}

	if err := c.seek(h.Start + int(h.HeaderSize)); err != nil {
		return err
	}

	flagsStart := c.pos_()
	flags := make([]uint32, entryCount)
	for i := range flags {
		v, err := c.u32()
		if err != nil {
			return err
		}
		flags[i] = v
	}

	if ts.EntryCount == 0 {
		ts.EntryCount = int(entryCount)
		ts.Flags = flags
		ts.Specs = make([]*ResSpec, entryCount)
	} else {
		// Merge: OR flag bits together, entry-by-entry, for the
		// overlapping range.
		for i := 0; i < len(flags) && i < len(ts.Flags); i++ {
			ts.Flags[i] |= flags[i]
		}
	}

	ts.flagRegion = &FlagRegion{
		PackageID:  pkg.ID,
		TypeID:     id,
		Offset:     flagsStart,
		EntryCount: int(entryCount),
	}

	return c.skipToChunkEnd(h)
}

// parseTypeChunk reads a Type (0x0201) chunk: one configuration's worth of
// entries for a resource type, dense or sparse encoded.
func parseTypeChunk(c *cursor, h chunkHeader, pkg *Package, globalStrings *stringPool, opts Options) error {
	id, err := c.u8()
	if err != nil {
		return err
	}
	flags, err := c.u8()
	if err != nil {
		return err
	}
	if _, err := c.u16(); err != nil { // reserved
		return err
	}
	entryCount, err := c.u32()
	if err != nil {
		return err
	}
	entriesStart, err := c.u32()
	if err != nil {
		return err
	}
	configSize, err := c.u32()
	if err != nil {
		return err
	}
	cfg, err := parseConfig(c, configSize)
	if err != nil {
		return err
	}

	ts := pkg.typeSpec(id)
	if ts == nil {
		if !opts.lenient() {
			return errf(KindUnknownTypeId, h.Start, "type chunk references unknown type id %d", id)
		}
		typeName := ""
		if pkg.TypeStrings != nil && id > 0 {
			typeName, _ = pkg.TypeStrings.getStrict(uint32(id)-1, false)
		}
		ts = pkg.getOrCreateTypeSpec(id, typeName)
		ts.EntryCount = int(entryCount)
		ts.Specs = make([]*ResSpec, entryCount)
	}
	if len(ts.Specs) < int(entryCount) {
		grown := make([]*ResSpec, entryCount)
		copy(grown, ts.Specs)
		ts.Specs = grown
		if ts.EntryCount < int(entryCount) {
			ts.EntryCount = int(entryCount)
		}
	}

	if entryCount == 0 {
		return c.skipToChunkEnd(h)
	}

	offsetArrayStart := c.pos_()
	entriesAbsStart := h.Start + int(entriesStart)

	type idxOff struct {
		idx int
		off uint32
	}
	var present []idxOff

	sparse := flags&typeFlagSparse != 0
	if sparse {
		n := (entriesAbsStart - offsetArrayStart) / 4
		for i := 0; i < n; i++ {
			idx16, err := c.u16()
			if err != nil {
				return err
			}
			off4, err := c.u16()
			if err != nil {
				return err
			}
			present = append(present, idxOff{idx: int(idx16), off: uint32(off4) * 4})
		}
	} else {
		for i := 0; i < int(entryCount); i++ {
			off, err := c.u32()
			if err != nil {
				return err
			}
			if off == NoEntry {
				continue
			}
			present = append(present, idxOff{idx: i, off: off})
		}
	}

	for _, e := range present {
		if err := c.seek(entriesAbsStart + int(e.off)); err != nil {
			if opts.lenient() {
				continue
			}
			return err
		}
		if err := decodeEntry(c, pkg, ts, e.idx, cfg, globalStrings, opts); err != nil {
			if opts.lenient() {
				continue
			}
			return err
		}
	}

	return c.skipToChunkEnd(h)
}

func decodeEntry(c *cursor, pkg *Package, ts *TypeSpec, entryIdx int, cfg ConfigFlags, globalStrings *stringPool, opts Options) error {
	entryStart := c.pos_()
	size, err := c.u16()
	if err != nil {
		return err
	}
	flags, err := c.u16()
	if err != nil {
		return err
	}
	keyIdx, err := c.u32()
	if err != nil {
		return err
	}
	// A map entry's declared size also covers the parent/count fields that
	// decodeBag reads next, so only simple entries skip to their size.
	if flags&entryFlagComplex == 0 && int(size) > c.pos_()-entryStart {
		if err := c.skip(int(size) - (c.pos_() - entryStart)); err != nil {
			return err
		}
	}

	name := ""
	if pkg.KeyStrings != nil {
		name, _ = pkg.KeyStrings.getStrict(keyIdx, false)
	}

	id := NewResID(pkg.ID, ts.ID, uint16(entryIdx))

	spec := ts.Specs[entryIdx]
	if spec == nil {
		spec = &ResSpec{ID: id, Package: pkg, TypeSpec: ts}
		ts.Specs[entryIdx] = spec
		pkg.specsByID[id] = spec
		assignSpecName(ts, spec, name)
	}

	var value Value
	if flags&entryFlagComplex != 0 {
		value, err = decodeBag(c, globalStrings)
	} else {
		value, err = decodeValue(c, globalStrings)
		if sv, ok := value.(StringValue); ok && looksLikeFilePath(sv.Raw) {
			value = FileValue{Path: sv.Raw}
		}
	}
	if err != nil {
		return err
	}

	_, err = spec.AddResource(cfg, value, opts.Overwrite)
	return err
}

func assignSpecName(ts *TypeSpec, spec *ResSpec, name string) {
	if name == "" {
		spec.Origin = OriginDummy
		spec.Name = name
		return
	}
	if ts.namesSeen == nil {
		ts.namesSeen = make(map[string]bool)
	}
	if ts.namesSeen[name] {
		spec.Origin = OriginDuplicate
		spec.Name = name
		return
	}
	ts.namesSeen[name] = true
	spec.Origin = OriginDecoded
	spec.Name = name
}

func decodeBag(c *cursor, pool *stringPool) (Value, error) {
	parent, err := c.u32()
	if err != nil {
		return nil, err
	}
	count, err := c.u32()
	if err != nil {
		return nil, err
	}
	entries := make([]BagEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		nameID, err := c.u32()
		if err != nil {
			return nil, err
		}
		val, err := decodeValue(c, pool)
		if err != nil {
			return nil, err
		}
		if sv, ok := val.(StringValue); ok && looksLikeFilePath(sv.Raw) {
			val = FileValue{Path: sv.Raw}
		}
		entries = append(entries, BagEntry{AttrID: ResID(nameID), Value: val})
	}
	return BagValue{Parent: ResID(parent), Children: entries}, nil
}

// looksLikeFilePath distinguishes a StringValue that actually names a file
// inside the APK (drawable/layout/xml/raw/font entries) from an ordinary
// in-XML string value.
func looksLikeFilePath(s string) bool {
	return strings.HasPrefix(s, "res/")
}

func parseLibraryChunk(c *cursor, h chunkHeader, pkg *Package) error {
	count, err := c.u32()
	if err != nil {
		return err
	}
	if err := c.seek(h.Start + int(h.HeaderSize)); err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		id, err := c.u32()
		if err != nil {
			return err
		}
		nameBytes, err := c.bytes(128 * 2)
		if err != nil {
			return err
		}
		pkg.Libraries = append(pkg.Libraries, LibraryEntry{
			PackageID: uint8(id),
			Name:      decodePackageName(nameBytes),
		})
	}
	return nil
}

func parseOverlayableChunk(c *cursor, h chunkHeader, pkg *Package) error {
	nameBytes, err := c.bytes(256)
	if err != nil {
		return err
	}
	actorBytes, err := c.bytes(256)
	if err != nil {
		return err
	}
	pkg.Overlayables = append(pkg.Overlayables, OverlayableEntry{
		Name:  decodePackageName(nameBytes),
		Actor: decodePackageName(actorBytes),
	})
	return nil
}

func parseStagedAliasChunk(c *cursor, h chunkHeader, pkg *Package) error {
	count, err := c.u32()
	if err != nil {
		return err
	}
	if err := c.seek(h.Start + int(h.HeaderSize)); err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		staged, err := c.u32()
		if err != nil {
			return err
		}
		final, err := c.u32()
		if err != nil {
			return err
		}
		pkg.StagedAlias = append(pkg.StagedAlias, StagedAliasEntry{StagedID: staged, FinalizedID: final})
	}
	return nil
}

// selectMainPackages applies spec.md §4.5's package-selection tie-break:
// skip any package named "android" or "com.htc"; among the rest, pick the
// one with the largest spec count; default to the first non-skipped
// package if ties or none obviously "win". The default case is reached
// without short-circuiting even when the first candidate is neither
// "android" nor "com.htc" (see Open Question in spec.md §9).
func (t *ResourceTable) selectMainPackages() {
	var candidates []*Package
	for _, p := range t.packages {
		if p.Name == "android" || p.Name == "com.htc" {
			continue
		}
		candidates = append(candidates, p)
	}

	var chosen *Package
	if len(candidates) > 0 {
		chosen = candidates[0]
		best := specCount(chosen)
		for _, p := range candidates[1:] {
			if n := specCount(p); n > best {
				chosen = p
				best = n
			}
		}
	} else if len(t.packages) > 0 {
		chosen = t.packages[0]
	}

	if chosen != nil {
		t.mainPackages = []*Package{chosen}
		t.currentPackage = chosen
	}
}

func specCount(p *Package) int {
	n := 0
	for _, ts := range p.typeSpecs {
		n += len(ts.Specs)
	}
	return n
}
