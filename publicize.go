package apkparser

// Publicize sets the "public" bit (0x40) in every entry-flags word covered
// by regions, over a copy of raw. It never mutates raw itself.
//
// Each TypeSpec entry-flags array is a sequence of little-endian uint32s;
// the public bit lives in the fourth, most significant byte of each word
// (offset+3), because
// the low three bytes hold the per-entry change mask and the high byte is
// reserved for exactly this kind of out-of-band flag. Setting an already-set
// bit is a no-op, so applying the same regions any number of times over is
// idempotent.
func Publicize(raw []byte, regions []FlagRegion) []byte {
	out := append([]byte(nil), raw...)
	for _, r := range regions {
		for i := 0; i < r.EntryCount; i++ {
			pos := r.Offset + i*4 + 3
			if pos < 0 || pos >= len(out) {
				continue
			}
			out[pos] |= specFlagPublic
		}
	}
	return out
}

// PublicizeTable re-derives the entry-flags regions recorded during decode
// (one per TypeSpec seen across every package) and patches them all. It's
// the convenience form most callers want; Publicize itself stays usable
// directly for callers that already have their own region list (e.g. one
// restricted to a single package or type).
func (t *ResourceTable) PublicizeTable() []byte {
	var regions []FlagRegion
	for _, pkg := range t.packages {
		for _, ts := range pkg.typeSpecs {
			if ts.flagRegion != nil {
				regions = append(regions, *ts.flagRegion)
			}
		}
	}
	return Publicize(t.raw, regions)
}
