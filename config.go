package apkparser

import (
	"bytes"
	"fmt"
	"strings"
)

// ConfigFlags is the full Android resource qualifier tuple (the ARSC
// ResTable_config struct). Fields that were added to the format in later
// SDK versions are only populated when the chunk-local declared size
// covers their byte range; anything declared beyond what this decoder
// knows how to interpret is preserved verbatim in Tail so two configs
// that differ only in bytes we don't understand still compare unequal,
// and so publicize-style byte-exact round trips stay possible.
type ConfigFlags struct {
	Mcc, Mnc uint16

	Language [2]byte
	Region   [2]byte

	Orientation uint8
	Touchscreen uint8
	Density     uint16

	Keyboard   uint8
	Navigation uint8
	InputFlags uint8

	ScreenWidth  uint16
	ScreenHeight uint16

	SDKVersion   uint16
	MinorVersion uint16

	ScreenLayout          uint8
	UIMode                uint8
	SmallestScreenWidthDp uint16

	ScreenWidthDp  uint16
	ScreenHeightDp uint16

	LocaleScript  [4]byte
	LocaleVariant [8]byte

	ScreenLayout2 uint8
	ColorMode     uint8

	LocaleNumberingSystem [8]byte

	// Tail holds any declared bytes beyond the fields this decoder knows
	// about, preserved verbatim for equality/round-trip purposes.
	Tail []byte
}

// ScreenLayout (size in the low nibble, layout direction in the top two
// bits) and UIMode (type, night) bit fields
const (
	screenLayoutSizeMask  = 0x0F
	screenLayoutDirMask   = 0xC0
	screenLayoutDirShift  = 6
	screenLayoutDirRTL    = 2
	uiModeTypeMask        = 0x0F
	uiModeNightMask       = 0x30
	uiModeNightShift      = 4
)

// Equal reports bit-for-bit equality over the full canonical tuple,
// including any preserved tail bytes.
func (c ConfigFlags) Equal(o ConfigFlags) bool {
	if c.Mcc != o.Mcc || c.Mnc != o.Mnc ||
		c.Language != o.Language || c.Region != o.Region ||
		c.Orientation != o.Orientation || c.Touchscreen != o.Touchscreen || c.Density != o.Density ||
		c.Keyboard != o.Keyboard || c.Navigation != o.Navigation || c.InputFlags != o.InputFlags ||
		c.ScreenWidth != o.ScreenWidth || c.ScreenHeight != o.ScreenHeight ||
		c.SDKVersion != o.SDKVersion || c.MinorVersion != o.MinorVersion ||
		c.ScreenLayout != o.ScreenLayout || c.UIMode != o.UIMode || c.SmallestScreenWidthDp != o.SmallestScreenWidthDp ||
		c.ScreenWidthDp != o.ScreenWidthDp || c.ScreenHeightDp != o.ScreenHeightDp ||
		c.LocaleScript != o.LocaleScript || c.LocaleVariant != o.LocaleVariant ||
		c.ScreenLayout2 != o.ScreenLayout2 || c.ColorMode != o.ColorMode ||
		c.LocaleNumberingSystem != o.LocaleNumberingSystem {
		return false
	}
	return bytes.Equal(c.Tail, o.Tail)
}

// IsDefault reports whether this is the unqualified ("default") config.
func (c ConfigFlags) IsDefault() bool {
	return c.Equal(ConfigFlags{})
}

// key returns a comparable value suitable for use as a map key; ConfigFlags
// itself contains a slice (Tail) so it can't be used directly as a map key.
type configKey string

func (c ConfigFlags) key() configKey {
	k := c
	k.Tail = nil
	return configKey(fmt.Sprintf("%v|%x", k, c.Tail))
}

// parseConfig reads a ResTable_config block. size is the chunk-local
// declared size (read by the caller as the block's own 4-byte size
// prefix); fields whose byte range exceeds size are left zero and any
// bytes beyond what this decoder interprets are preserved in Tail.
func parseConfig(c *cursor, size uint32) (ConfigFlags, error) {
	start := c.pos_()
	end := start + int(size) - 4 // size field itself already consumed by caller
	if end < start || c.pos_()+int(size)-4 > c.len() {
		return ConfigFlags{}, errf(KindInvalidConfig, start, "config size %d exceeds containing chunk", size)
	}

	var cfg ConfigFlags
	avail := func(need int) bool { return c.pos_()+need <= end }

	read := func(dst *uint16) bool {
		if !avail(2) {
			return false
		}
		v, _ := c.u16()
		*dst = v
		return true
	}
	readU8 := func(dst *uint8) bool {
		if !avail(1) {
			return false
		}
		v, _ := c.u8()
		*dst = v
		return true
	}
	readBytes := func(dst []byte) bool {
		if !avail(len(dst)) {
			return false
		}
		b, _ := c.bytes(len(dst))
		copy(dst, b)
		return true
	}

	read(&cfg.Mcc)
	read(&cfg.Mnc)

	readBytes(cfg.Language[:])
	readBytes(cfg.Region[:])

	readU8(&cfg.Orientation)
	readU8(&cfg.Touchscreen)
	read(&cfg.Density)

	readU8(&cfg.Keyboard)
	readU8(&cfg.Navigation)
	readU8(&cfg.InputFlags)
	if avail(1) {
		c.skip(1) // inputPad0
	}

	read(&cfg.ScreenWidth)
	read(&cfg.ScreenHeight)

	read(&cfg.SDKVersion)
	read(&cfg.MinorVersion)

	readU8(&cfg.ScreenLayout)
	readU8(&cfg.UIMode)
	read(&cfg.SmallestScreenWidthDp)

	read(&cfg.ScreenWidthDp)
	read(&cfg.ScreenHeightDp)

	readBytes(cfg.LocaleScript[:])
	readBytes(cfg.LocaleVariant[:])

	readU8(&cfg.ScreenLayout2)
	readU8(&cfg.ColorMode)
	if avail(2) {
		c.skip(2) // screenConfigPad2
	}

	readBytes(cfg.LocaleNumberingSystem[:])

	if c.pos_() < end {
		tail, err := c.bytes(end - c.pos_())
		if err != nil {
			return cfg, err
		}
		cfg.Tail = append([]byte(nil), tail...)
	}

	// Always land exactly at end, whatever was or wasn't understood.
	if err := c.seek(end); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var densityNames = map[uint16]string{
	120: "ldpi", 160: "mdpi", 213: "tvdpi", 240: "hdpi",
	320: "xhdpi", 480: "xxhdpi", 640: "xxxhdpi",
	0xFFFF: "anydpi", 0: "nodpi",
}

// Canonical renders the qualifier suffix used for a values-<qualifiers>
// directory name, e.g. "fr-rFR-v21". The default config renders as "".
func (c ConfigFlags) Canonical() string {
	var parts []string

	if c.Mcc != 0 {
		parts = append(parts, fmt.Sprintf("mcc%03d", c.Mcc))
	}
	if c.Mnc != 0 {
		parts = append(parts, fmt.Sprintf("mnc%d", c.Mnc))
	}
	if language := trimZero(c.Language[:]); language != "" {
		parts = append(parts, language)
		if region := trimZero(c.Region[:]); region != "" {
			parts = append(parts, "r"+strings.ToUpper(region))
		}
	}
	switch c.ScreenLayout & screenLayoutDirMask >> screenLayoutDirShift {
	case screenLayoutDirRTL:
		parts = append(parts, "ldrtl")
	}
	if w := c.SmallestScreenWidthDp; w != 0 {
		parts = append(parts, fmt.Sprintf("sw%ddp", w))
	}
	if w := c.ScreenWidthDp; w != 0 {
		parts = append(parts, fmt.Sprintf("w%ddp", w))
	}
	if h := c.ScreenHeightDp; h != 0 {
		parts = append(parts, fmt.Sprintf("h%ddp", h))
	}
	if sz := c.ScreenLayout & screenLayoutSizeMask; sz != 0 {
		if name, ok := map[uint8]string{1: "small", 2: "normal", 3: "large", 4: "xlarge"}[sz]; ok {
			parts = append(parts, name)
		}
	}
	switch c.Orientation {
	case 1:
		parts = append(parts, "port")
	case 2:
		parts = append(parts, "land")
	}
	switch c.UIMode & uiModeTypeMask {
	case 4:
		parts = append(parts, "car")
	case 5:
		parts = append(parts, "desk")
	case 6:
		parts = append(parts, "television")
	case 7:
		parts = append(parts, "appliance")
	case 8:
		parts = append(parts, "watch")
	}
	switch c.UIMode & uiModeNightMask >> uiModeNightShift {
	case 1:
		parts = append(parts, "notnight")
	case 2:
		parts = append(parts, "night")
	}
	if c.Density != 0 {
		if name, ok := densityNames[c.Density]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, fmt.Sprintf("%ddpi", c.Density))
		}
	}
	switch c.Touchscreen {
	case 1:
		parts = append(parts, "notouch")
	case 3:
		parts = append(parts, "finger")
	}
	switch c.Keyboard {
	case 2:
		parts = append(parts, "qwerty")
	case 3:
		parts = append(parts, "12key")
	}
	switch c.Navigation {
	case 2:
		parts = append(parts, "dpad")
	case 3:
		parts = append(parts, "trackball")
	case 4:
		parts = append(parts, "wheel")
	}
	if c.SDKVersion != 0 {
		parts = append(parts, fmt.Sprintf("v%d", c.SDKVersion))
	}

	return strings.Join(parts, "-")
}

func trimZero(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return lowerASCII(string(b[:n]))
}

func lowerASCII(s string) string {
	return strings.ToLower(s)
}
