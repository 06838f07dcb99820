package apkparser

import "fmt"

// ResID is a 32-bit resource identifier packed as package_id(8) |
// type_id(8) | entry_id(16), matching AOSP's packing.
type ResID uint32

// NewResID packs a (package, type, entry) triple into a ResID.
func NewResID(pkg, typ uint8, entry uint16) ResID {
	return ResID(uint32(pkg)<<24 | uint32(typ)<<16 | uint32(entry))
}

func (id ResID) Package() uint8 { return uint8(id >> 24) }
func (id ResID) Type() uint8    { return uint8(id >> 16) }
func (id ResID) Entry() uint16  { return uint16(id) }

func (id ResID) String() string { return fmt.Sprintf("0x%08x", uint32(id)) }

// SpecOrigin records how a ResSpec's name was obtained, so the display
// name is derived at emission time from a structured flag rather than by
// sniffing magic substrings out of the name itself.
type SpecOrigin int

const (
	OriginDecoded SpecOrigin = iota
	OriginDummy              // entry had no name in the key pool
	OriginDuplicate          // entry's name collided with an earlier spec of the same type
)

// StyleSpan is one (name, first_char, last_char) span attached to a
// StringValue, describing inline markup ("<b>...</b>") over a character
// range of the string.
type StyleSpan struct {
	Name      string
	FirstChar uint32
	LastChar  uint32
}

// FlagRegion is the byte range of a TypeSpec's entry-flags array within
// the raw resources.arsc buffer, recorded by C5 so the Publicizer (C8)
// can patch it without re-parsing the stream.
type FlagRegion struct {
	PackageID  uint8
	TypeID     uint8
	Offset     int
	EntryCount int
}

// Resource is one configuration's worth of value for a ResSpec.
type Resource struct {
	Spec   *ResSpec
	Config ConfigFlags
	Value  Value
}

// TypeSpec groups all ResSpecs of one resource type (e.g. "string",
// "drawable") within a package.
type TypeSpec struct {
	ID         uint8
	Name       string
	EntryCount int
	Flags      []uint32 // per-entry configuration-change mask from the TypeSpec chunk; nil for a type-spec created from a Type chunk alone, and not extended when a Type chunk grows EntryCount
	Specs      []*ResSpec
	Package    *Package

	flagRegion *FlagRegion
	namesSeen  map[string]bool // dupe/dummy-name bookkeeping during decode, see assignSpecName
}

// ResSpec is the logical identity of a named resource: one id, an origin,
// and zero-or-more per-configuration values.
type ResSpec struct {
	ID       ResID
	Name     string
	Origin   SpecOrigin
	Package  *Package
	TypeSpec *TypeSpec

	configs  []*Resource           // insertion order, for deterministic emission
	byConfig map[configKey]*Resource
}

// DisplayName derives the apktool-compatible emitted name from Origin,
// per DESIGN NOTES ("synthetic names as sentinels"): storage keeps a
// structured flag, display derives the magic string.
func (s *ResSpec) DisplayName() string {
	switch s.Origin {
	case OriginDummy:
		return fmt.Sprintf("APKTOOL_DUMMYVAL_%x", uint32(s.ID))
	case OriginDuplicate:
		typeName := "?"
		if s.TypeSpec != nil {
			typeName = s.TypeSpec.Name
		}
		return fmt.Sprintf("APKTOOL_DUPLICATE_%s_0x%08x", typeName, uint32(s.ID))
	default:
		return s.Name
	}
}

// AddResource inserts (or, with overwrite, replaces) the Resource for a
// given config. Returns DuplicateResource if one already exists and
// overwrite is false.
func (s *ResSpec) AddResource(cfg ConfigFlags, value Value, overwrite bool) (*Resource, error) {
	if s.byConfig == nil {
		s.byConfig = make(map[configKey]*Resource)
	}
	k := cfg.key()
	if existing, ok := s.byConfig[k]; ok {
		if !overwrite {
			return nil, errf(KindDuplicateResource, 0, "duplicate resource %s for config %q", s.ID, cfg.Canonical())
		}
		existing.Value = value
		return existing, nil
	}
	r := &Resource{Spec: s, Config: cfg, Value: value}
	s.byConfig[k] = r
	s.configs = append(s.configs, r)
	return r, nil
}

// Configured returns all per-configuration resources, in insertion order.
func (s *ResSpec) Configured() []*Resource { return s.configs }

// ConfigCount returns the number of distinct configurations this spec has
// a value for.
func (s *ResSpec) ConfigCount() int { return len(s.configs) }

// ResourceFor returns the resource for an exact config match, if any.
func (s *ResSpec) ResourceFor(cfg ConfigFlags) (*Resource, bool) {
	r, ok := s.byConfig[cfg.key()]
	return r, ok
}

// Package is a namespace of resources identified by an 8-bit id.
type Package struct {
	ID   uint8
	Name string

	TypeStrings *stringPool
	KeyStrings  *stringPool

	typeSpecsByID map[uint8]*TypeSpec
	typeSpecs     []*TypeSpec // insertion order

	specsByID map[ResID]*ResSpec

	// Forward-compatible chunks recorded but not wired into the spec
	// graph (per the Open Question on staged_alias).
	Libraries    []LibraryEntry
	Overlayables []OverlayableEntry
	StagedAlias  []StagedAliasEntry
}

// LibraryEntry records one (package id -> name) mapping from a Library
// (0x0203) chunk, used by dynamic-reference-bearing shared-library tables.
type LibraryEntry struct {
	PackageID uint8
	Name      string
}

// OverlayableEntry records one overlayable group name/actor pair.
type OverlayableEntry struct {
	Name  string
	Actor string
}

// StagedAliasEntry records one (staged id -> finalized id) pair. Recorded
// but otherwise unused, per the Open Question on staged_alias handling.
type StagedAliasEntry struct {
	StagedID    uint32
	FinalizedID uint32
}

func newPackage(id uint8, name string) *Package {
	return &Package{
		ID:            id,
		Name:          name,
		typeSpecsByID: make(map[uint8]*TypeSpec),
		specsByID:     make(map[ResID]*ResSpec),
	}
}

// TypeSpecs returns the package's type-specs in the order their TypeSpec
// chunks were first encountered.
func (p *Package) TypeSpecs() []*TypeSpec { return p.typeSpecs }

func (p *Package) typeSpec(id uint8) *TypeSpec { return p.typeSpecsByID[id] }

func (p *Package) getOrCreateTypeSpec(id uint8, name string) *TypeSpec {
	if ts, ok := p.typeSpecsByID[id]; ok {
		return ts
	}
	ts := &TypeSpec{ID: id, Name: name, Package: p}
	p.typeSpecsByID[id] = ts
	p.typeSpecs = append(p.typeSpecs, ts)
	return ts
}

// SpecByID returns the ResSpec owning a given resource id, if present in
// this package.
func (p *Package) SpecByID(id ResID) (*ResSpec, bool) {
	s, ok := p.specsByID[id]
	return s, ok
}
