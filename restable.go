package apkparser

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
)

// ErrEndParsing lets a chunk handler abort the remainder of a decode pass
// without that being treated as failure; used by lenient callers that only
// need a prefix of the document (e.g. just the manifest's root attributes).
var ErrEndParsing = errors.New("apkparser: stop parsing")

// ConfigPick selects which of a ResSpec's per-configuration resources to
// use when a caller wants "the" value for a reference rather than one
// pinned to an exact config.
type ConfigPick int

const (
	// ConfigFirst picks the first configuration encountered during decode
	// (typically the default/unqualified one).
	ConfigFirst ConfigPick = iota
	// ConfigLast picks the last configuration encountered during decode
	// (for density-ordered drawables, typically the highest density).
	ConfigLast
)

// ResourceEntry is the result of resolving a resource id to a concrete,
// picked value: the spec it came from, the config it was decoded under,
// and the (possibly reference-chain-resolved) value itself.
type ResourceEntry struct {
	Spec   *ResSpec
	Config ConfigFlags
	value  Value
}

// String renders the entry's value, see Value.String.
func (e *ResourceEntry) String() (string, error) { return e.value.String() }

// Value returns the entry's decoded value.
func (e *ResourceEntry) Value() Value { return e.value }

// ReferenceResolution is the symbolic-name result of DecodeReference.
type ReferenceResolution struct {
	ResolvedName  string
	IsStyleParent bool
}

// ResourceTable is the in-memory reconstruction of a decoded
// resources.arsc: packages, their type-specs, specs, and configured
// values, plus whatever forward-compatible chunks were seen.
//
// A ResourceTable is built once by ParseResourceTable and is safe to use
// read-only (lookups, emission) from then on; it has no shared mutable
// globals and is never shared across concurrent decode sessions.
type ResourceTable struct {
	Options Options

	raw []byte // the whole resources.arsc buffer, kept for Publicize

	packagesByID map[uint8]*Package
	packages     []*Package // insertion order
	mainPackages []*Package

	currentPackage *Package
	firstErr       error

	Incomplete bool // set when decode was cancelled mid-stream in lenient mode
}

func newResourceTable(opts Options) *ResourceTable {
	return &ResourceTable{
		Options:      opts,
		packagesByID: make(map[uint8]*Package),
	}
}

// ParseResourceTable decodes a resources.arsc stream into a ResourceTable.
// It buffers the entire input first (the string-pool and type-spec/type
// chunks need to be revisited out of order), so r need not be seekable.
func ParseResourceTable(r io.Reader) (*ResourceTable, error) {
	return ParseResourceTableCtx(context.Background(), r, Options{})
}

// ParseResourceTableCtx is ParseResourceTable with explicit cancellation
// and session options (§6 "Session configuration").
func ParseResourceTableCtx(ctx context.Context, r io.Reader, opts Options) (*ResourceTable, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, newErr(KindIoFailure, 0, "reading resources.arsc", err)
	}
	return ParseResourceTableBytes(ctx, data, opts)
}

// ParseResourceTableBytes decodes an already-buffered resources.arsc. The
// returned table retains a reference to data (for Publicize); callers that
// intend to mutate data afterwards should pass a copy.
func ParseResourceTableBytes(ctx context.Context, data []byte, opts Options) (*ResourceTable, error) {
	t := newResourceTable(opts)
	t.raw = data
	if err := t.decode(ctx); err != nil {
		return t, err
	}
	t.selectMainPackages()
	return t, nil
}

// AddPackage inserts a package, optionally marking it as part of the main
// set consulted by emitters (list_main_packages in spec terms).
func (t *ResourceTable) AddPackage(p *Package, isMain bool) {
	if _, exists := t.packagesByID[p.ID]; !exists {
		t.packages = append(t.packages, p)
	}
	t.packagesByID[p.ID] = p
	if isMain {
		t.mainPackages = append(t.mainPackages, p)
	}
}

// Packages returns every decoded package, in insertion order.
func (t *ResourceTable) Packages() []*Package { return t.packages }

// ListMainPackages returns the packages selected as "main" (see
// selectMainPackages / spec.md §4.5 "Package selection"), in insertion
// order.
func (t *ResourceTable) ListMainPackages() []*Package { return t.mainPackages }

// GetPackageByID looks up a decoded package by its 8-bit id.
func (t *ResourceTable) GetPackageByID(id uint8) (*Package, bool) {
	p, ok := t.packagesByID[id]
	return p, ok
}

// GetPackageByName looks up a decoded package by name.
func (t *ResourceTable) GetPackageByName(name string) (*Package, bool) {
	for _, p := range t.packages {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// SetCurrentPackage selects the package whose key/type pools are consulted
// when resolving references during an AXML decode pass (§6 attribute
// decoder contract). It is plain per-session state, never ambient/global.
func (t *ResourceTable) SetCurrentPackage(p *Package) { t.currentPackage = p }

// CurrentPackage returns the package set by SetCurrentPackage, or the
// first main package if none was set explicitly.
func (t *ResourceTable) CurrentPackage() *Package {
	if t.currentPackage != nil {
		return t.currentPackage
	}
	if len(t.mainPackages) > 0 {
		return t.mainPackages[0]
	}
	return nil
}

// FirstError returns the first error a lenient (KeepBroken) decode of
// resources.arsc recovered from while parsing a top-level string pool or
// package chunk, or nil. Errors skipped inside a package, and errors from
// ParseXml, are not recorded here.
func (t *ResourceTable) FirstError() error { return t.firstErr }

func (t *ResourceTable) noteError(err error) {
	if err != nil && t.firstErr == nil {
		t.firstErr = err
	}
}

// specByGlobalID looks up a ResSpec across all decoded packages.
func (t *ResourceTable) specByGlobalID(id ResID) (*ResSpec, bool) {
	p, ok := t.packagesByID[id.Package()]
	if !ok {
		return nil, false
	}
	return p.SpecByID(id)
}

// GetResourceEntry resolves id using ConfigFirst, following reference/
// attribute chains to a terminal value (depth-capped). This is the entry
// point AXML attribute decoding uses for ordinary @id/ references.
func (t *ResourceTable) GetResourceEntry(id uint32) (*ResourceEntry, error) {
	return t.GetResourceEntryEx(id, ConfigFirst)
}

// GetResourceEntryEx resolves id using the given config-pick strategy.
func (t *ResourceTable) GetResourceEntryEx(id uint32, pick ConfigPick) (*ResourceEntry, error) {
	return t.resolveEntry(ResID(id), pick, 0)
}

// GetIconPng resolves id using ConfigLast, which for a density-ordered set
// of mipmap/drawable entries picks the highest-density variant -- the one
// most representative for display as an app icon.
func (t *ResourceTable) GetIconPng(id uint32) (*ResourceEntry, error) {
	return t.GetResourceEntryEx(id, ConfigLast)
}

const maxResolveDepth = 16

func (t *ResourceTable) resolveEntry(id ResID, pick ConfigPick, depth int) (*ResourceEntry, error) {
	if depth >= maxResolveDepth {
		return nil, errf(KindUnknownResourceId, 0, "reference chain for %s exceeds max depth %d", id, maxResolveDepth)
	}

	spec, ok := t.specByGlobalID(id)
	if !ok {
		return nil, errf(KindUnknownResourceId, 0, "resource %s not found", id)
	}

	res := pickResource(spec, pick)
	if res == nil {
		return nil, errf(KindUnknownResourceId, 0, "resource %s has no configured value", id)
	}

	switch v := res.Value.(type) {
	case ReferenceValue:
		return t.resolveEntry(v.Target, pick, depth+1)
	case AttributeValue:
		return t.resolveEntry(v.Target, pick, depth+1)
	default:
		return &ResourceEntry{Spec: spec, Config: res.Config, value: res.Value}, nil
	}
}

func pickResource(spec *ResSpec, pick ConfigPick) *Resource {
	cfgs := spec.Configured()
	if len(cfgs) == 0 {
		return nil
	}
	if pick == ConfigLast {
		return cfgs[len(cfgs)-1]
	}
	return cfgs[0]
}

// DecodeReference resolves id to a symbolic name ("@pkg:type/name" or, for
// a style-parent/attribute hint, "?pkg:type/name"), falling back to a
// hex-id string when the target can't be resolved. This is the §6
// attribute-decoder contract used by AXML collaborators that want a
// symbolic name rather than a resolved scalar value.
func (t *ResourceTable) DecodeReference(id ResID, isStyleParentHint bool) (ReferenceResolution, error) {
	spec, ok := t.specByGlobalID(id)
	if !ok {
		sigil := "@"
		if isStyleParentHint {
			sigil = "?"
		}
		return ReferenceResolution{ResolvedName: sigil + id.String()}, errf(KindUnknownResourceId, 0, "resource %s not found", id)
	}

	sigil := "@"
	if isStyleParentHint {
		sigil = "?"
	}
	typeName := "?"
	if spec.TypeSpec != nil {
		typeName = spec.TypeSpec.Name
	}
	pkgName := ""
	if spec.Package != nil {
		pkgName = spec.Package.Name
	}
	name := spec.DisplayName()

	resolved := sigil
	if pkgName != "" {
		resolved += pkgName + ":"
	}
	resolved += typeName + "/" + name

	return ReferenceResolution{ResolvedName: resolved, IsStyleParent: isStyleParentHint}, nil
}
