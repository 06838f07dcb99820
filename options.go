package apkparser

// Options configures a single decode session. It replaces the process-wide
// "keep broken" style flag some decompilers use with an explicit,
// per-session value threaded through every call; the core never reads
// package-level mutable state.
type Options struct {
	// KeepBroken accepts malformed chunks by skipping to the next chunk
	// boundary (using the declared total size) instead of failing.
	KeepBroken bool

	// AnalysisMode suppresses post-decode mutations such as version-code
	// stripping or package renaming that a caller might otherwise apply.
	AnalysisMode bool

	// SharedLibrary permits a package id of 0 (as used by shared-library
	// resource tables); without it such a package is rejected. Every other
	// package id is accepted either way.
	SharedLibrary bool

	// SparseResources hints that the input is expected to use sparse type
	// encoding, for diagnostic checks only; decoding itself always
	// recognizes the sparse flag bit regardless of this hint.
	SparseResources bool

	// Overwrite lets a later sighting of the same (spec, config) pair
	// replace the earlier Resource's value; without it a second sighting
	// is a DuplicateResource error.
	Overwrite bool
}

// lenient reports whether structural failures should be recovered instead
// of treated as fatal.
func (o Options) lenient() bool { return o.KeepBroken }
