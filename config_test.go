package apkparser

import "testing"

// buildConfigBlock assembles a ResTable_config body of exactly fieldBytes
// length, returning the full size-prefixed block parseConfig expects
// (including the 4-byte size field consumed by the caller before it).
func buildConfigBlock(fieldBytes []byte) []byte {
	size := uint32(len(fieldBytes) + 4)
	return append(u32b(size), fieldBytes...)
}

func TestParseConfigFull(t *testing.T) {
	var b []byte
	b = append(b, u16b(310)...)  // Mcc
	b = append(b, u16b(410)...)  // Mnc
	b = append(b, 'e', 'n')      // Language
	b = append(b, 'U', 'S')      // Region
	b = append(b, 1)             // Orientation: port
	b = append(b, 3)             // Touchscreen: finger
	b = append(b, u16b(320)...)  // Density: xhdpi
	b = append(b, 0)             // Keyboard
	b = append(b, 0)             // Navigation
	b = append(b, 0)             // InputFlags
	b = append(b, 0)             // pad
	b = append(b, u16b(0)...)    // ScreenWidth
	b = append(b, u16b(0)...)    // ScreenHeight
	b = append(b, u16b(21)...)   // SDKVersion
	b = append(b, u16b(0)...)    // MinorVersion
	b = append(b, 0)             // ScreenLayout
	b = append(b, 0)             // UIMode
	b = append(b, u16b(0)...)    // SmallestScreenWidthDp
	b = append(b, u16b(0)...)    // ScreenWidthDp
	b = append(b, u16b(0)...)    // ScreenHeightDp
	b = append(b, make([]byte, 4)...)  // LocaleScript
	b = append(b, make([]byte, 8)...)  // LocaleVariant
	b = append(b, 0)             // ScreenLayout2
	b = append(b, 0)             // ColorMode
	b = append(b, 0, 0)          // pad2
	b = append(b, make([]byte, 8)...) // LocaleNumberingSystem

	block := buildConfigBlock(b)
	c := newCursor(block, false)
	size, err := c.u32()
	if err != nil {
		t.Fatalf("reading size prefix: %v", err)
	}

	cfg, err := parseConfig(c, size)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if c.pos_() != len(block) {
		t.Fatalf("cursor left at %d, want %d", c.pos_(), len(block))
	}

	if cfg.Mcc != 310 || cfg.Mnc != 410 {
		t.Errorf("Mcc/Mnc = %d/%d, want 310/410", cfg.Mcc, cfg.Mnc)
	}
	if cfg.SDKVersion != 21 {
		t.Errorf("SDKVersion = %d, want 21", cfg.SDKVersion)
	}
	if len(cfg.Tail) != 0 {
		t.Errorf("Tail = %v, want empty for a fully-understood config", cfg.Tail)
	}

	want := "mcc310-mnc410-en-rUS-port-xhdpi-finger-v21"
	if got := cfg.Canonical(); got != want {
		t.Errorf("Canonical() = %q, want %q", got, want)
	}
	if cfg.IsDefault() {
		t.Errorf("IsDefault() = true for a populated config")
	}
}

func TestParseConfigDefault(t *testing.T) {
	block := buildConfigBlock(nil)
	c := newCursor(block, false)
	size, _ := c.u32()

	cfg, err := parseConfig(c, size)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if !cfg.IsDefault() {
		t.Errorf("zero-length config should be IsDefault()")
	}
	if got := cfg.Canonical(); got != "" {
		t.Errorf("Canonical() = %q, want \"\"", got)
	}
}

func TestParseConfigForwardCompatTail(t *testing.T) {
	// A config declaring more bytes than this decoder understands must
	// preserve the extra bytes in Tail and still land exactly at the end.
	known := make([]byte, 56)
	extra := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	block := buildConfigBlock(append(known, extra...))

	c := newCursor(block, false)
	size, _ := c.u32()
	cfg, err := parseConfig(c, size)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if c.pos_() != len(block) {
		t.Fatalf("cursor left at %d, want %d", c.pos_(), len(block))
	}
	if string(cfg.Tail) != string(extra) {
		t.Errorf("Tail = %v, want %v", cfg.Tail, extra)
	}
}

func TestParseConfigBackwardCompatShort(t *testing.T) {
	// A config shorter than this decoder's known fields must leave the
	// unreachable trailing fields zero rather than erroring.
	short := make([]byte, 8) // only Mcc/Mnc/Language/Region
	block := buildConfigBlock(short)

	c := newCursor(block, false)
	size, _ := c.u32()
	cfg, err := parseConfig(c, size)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.SDKVersion != 0 || cfg.Density != 0 {
		t.Errorf("fields beyond the declared size should stay zero, got SDKVersion=%d Density=%d", cfg.SDKVersion, cfg.Density)
	}
}
