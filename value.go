package apkparser

import (
	"fmt"
	"math"
)

// Value is the decoded form of an ARSC typed-value record (C4). It is
// modeled as a small sum type: one concrete struct per wire variant, so
// the emitter (C9) can dispatch exhaustively with a type switch instead of
// comparing string tags.
type Value interface {
	// String renders the value's textual form. For Reference/Attribute
	// values this is the unresolved "@0x..."/"?0x..." fallback; callers
	// that want symbolic names should resolve through the table first
	// (see ResourceTable.GetResourceEntry / DecodeReference).
	String() (string, error)
}

// NullValue is either an explicit "no value" (Empty == false, the
// NULL/data==0 case) or an explicit empty value (Empty == true, data==1).
type NullValue struct{ Empty bool }

func (v NullValue) String() (string, error) { return "", nil }

// ReferenceValue is an unresolved pointer at a target resource id.
type ReferenceValue struct{ Target ResID }

func (v ReferenceValue) String() (string, error) {
	return fmt.Sprintf("@0x%08x", uint32(v.Target)), nil
}

// AttributeValue is an unresolved pointer at a style/theme attribute id.
type AttributeValue struct{ Target ResID }

func (v AttributeValue) String() (string, error) {
	return fmt.Sprintf("?0x%08x", uint32(v.Target)), nil
}

// StringValue is a string-pool reference, carrying any style spans that
// apply to it so the emitter can reconstruct inline markup.
type StringValue struct {
	Raw   string
	Spans []StyleSpan
}

func (v StringValue) String() (string, error) { return v.Raw, nil }

// FloatValue is a raw IEEE-754 float.
type FloatValue struct{ F float32 }

func (v FloatValue) String() (string, error) {
	return fmt.Sprintf("%g", v.F), nil
}

// DimensionUnit enumerates the low nibble of a packed dimension/fraction
// value, per frameworks/base's TypedValue constants.
type DimensionUnit uint8

const (
	UnitPx DimensionUnit = iota
	UnitDip
	UnitSp
	UnitPt
	UnitIn
	UnitMm
)

func (u DimensionUnit) suffix() string {
	switch u {
	case UnitPx:
		return "px"
	case UnitDip:
		return "dp"
	case UnitSp:
		return "sp"
	case UnitPt:
		return "pt"
	case UnitIn:
		return "in"
	case UnitMm:
		return "mm"
	default:
		return "px"
	}
}

// DimensionValue is a packed complex number as used by dimension
// attributes ("16dp", "1.5sp", ...). Raw is the original 32-bit data word
// (mantissa<<8 | radix<<4 | unit), kept so re-encoding is bit-exact.
type DimensionValue struct {
	Raw  uint32
	Unit DimensionUnit
}

func (v DimensionValue) String() (string, error) {
	return formatComplexNumber(complexToFloat(v.Raw)) + v.Unit.suffix(), nil
}

// FractionUnit distinguishes "% of parent" from "% of parent's parent".
type FractionUnit uint8

const (
	FractionBasic FractionUnit = iota
	FractionParent
)

// FractionValue is a packed complex-number percentage value.
type FractionValue struct {
	Raw  uint32
	Unit FractionUnit
}

func (v FractionValue) String() (string, error) {
	f := complexToFloat(v.Raw) * 100
	suffix := "%"
	if v.Unit == FractionParent {
		suffix = "%p"
	}
	return formatComplexNumber(f) + suffix, nil
}

// IntValue is a signed 32-bit integer, formatted decimal or hex per the
// wire type it was decoded from.
type IntValue struct {
	V   int32
	Hex bool
}

func (v IntValue) String() (string, error) {
	if v.Hex {
		return fmt.Sprintf("0x%x", uint32(v.V)), nil
	}
	return fmt.Sprintf("%d", v.V), nil
}

// BoolValue is an INT_BOOLEAN value (data != 0).
type BoolValue struct{ V bool }

func (v BoolValue) String() (string, error) { return fmt.Sprintf("%t", v.V), nil }

// ColorValue is one of the INT_COLOR_* variants. Width records how many
// hex digits the source used (3, 4, 6 or 8) so re-emission keeps the same
// shorthand the encoder originally chose.
type ColorValue struct {
	ARGB  uint32
	Width int
}

func (v ColorValue) String() (string, error) {
	switch v.Width {
	case 3: // RGB4 -> one hex digit per channel, alpha implied opaque
		return fmt.Sprintf("#%03x", v.ARGB&0x0FFF), nil
	case 4: // ARGB4
		return fmt.Sprintf("#%04x", v.ARGB&0xFFFF), nil
	case 6: // RGB8
		return fmt.Sprintf("#%06x", v.ARGB&0xFFFFFF), nil
	default: // ARGB8
		return fmt.Sprintf("#%08x", v.ARGB), nil
	}
}

// FileValue names a file inside the APK (res/drawable-.../foo.png, a raw
// XML layout, ...). Resources carrying a FileValue are never placed into
// a ValuesFile; they're emitted (by a collaborator) as their own file.
type FileValue struct{ Path string }

func (v FileValue) String() (string, error) { return v.Path, nil }

// BagEntry is one ordered (attribute, value) child of a BagValue.
type BagEntry struct {
	AttrID ResID
	Value  Value
}

// BagValue is a compound value: a style, array or plurals, with an
// optional style parent and an ordered list of children. Child order must
// be preserved through decode and emission.
type BagValue struct {
	Parent   ResID
	Children []BagEntry
}

func (v BagValue) String() (string, error) {
	return "", fmt.Errorf("bag values have no scalar string form")
}

// complexToFloat mirrors android.util.TypedValue.complexToFloat: the
// mantissa occupies the top 24 bits (left in place, not shifted down, to
// match AOSP's own mask-then-multiply trick) and the 2-bit radix field
// selects how many of those bits are fractional.
func complexToFloat(data uint32) float64 {
	const mantissaMask uint32 = 0xFFFFFF
	const mantissaShift = 8
	const radixShift = 4
	const radixMask = 0x3

	masked := int32(data & (mantissaMask << mantissaShift))
	radix := (data >> radixShift) & radixMask
	return float64(masked) * radixMult(radix)
}

func radixMult(radix uint32) float64 {
	const mantissaMult = 1.0 / 256.0
	switch radix {
	case 0:
		return 1.0 * mantissaMult
	case 1:
		return 1.0 / 128 * mantissaMult
	case 2:
		return 1.0 / 32768 * mantissaMult
	default:
		return 1.0 / 8388608 * mantissaMult
	}
}

func formatComplexNumber(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// decodeValue reads one typed-value record (Res_value: size u16, res0 u8,
// type u8, data u32) off c and turns it into a concrete Value. pool
// resolves AttrTypeString data as an index into the table's global value
// string pool; it may be nil for AXML contexts that decode values inline
// without a table.
func decodeValue(c *cursor, pool *stringPool) (Value, error) {
	start := c.pos_()
	size, err := c.u16()
	if err != nil {
		return nil, err
	}
	if _, err := c.u8(); err != nil { // res0 padding
		return nil, err
	}
	typ, err := c.u8()
	if err != nil {
		return nil, err
	}
	data, err := c.u32()
	if err != nil {
		return nil, err
	}

	if consumed := c.pos_() - start; int(size) > consumed {
		if err := c.skip(int(size) - consumed); err != nil {
			return nil, err
		}
	}

	return valueFromTyped(AttrType(typ), data, pool)
}

func valueFromTyped(typ AttrType, data uint32, pool *stringPool) (Value, error) {
	switch typ {
	case AttrTypeNull:
		return NullValue{Empty: data == 1}, nil
	case AttrTypeReference, AttrTypeDynamicReference:
		return ReferenceValue{Target: ResID(data)}, nil
	case AttrTypeAttribute, AttrTypeDynamicAttribute:
		return AttributeValue{Target: ResID(data)}, nil
	case AttrTypeString:
		if pool == nil {
			return StringValue{}, nil
		}
		s, err := pool.getStrict(data, false)
		if err != nil {
			return nil, err
		}
		spans, err := pool.styles(data)
		if err != nil {
			return nil, err
		}
		return StringValue{Raw: s, Spans: spans}, nil
	case AttrTypeFloat:
		return FloatValue{F: math.Float32frombits(data)}, nil
	case AttrTypeDimension:
		return DimensionValue{Raw: data, Unit: DimensionUnit(data & 0xF)}, nil
	case AttrTypeFraction:
		return FractionValue{Raw: data, Unit: FractionUnit(data & 0xF)}, nil
	case AttrTypeIntDec:
		return IntValue{V: int32(data), Hex: false}, nil
	case AttrTypeIntHex:
		return IntValue{V: int32(data), Hex: true}, nil
	case AttrTypeIntBool:
		return BoolValue{V: data != 0}, nil
	case AttrTypeIntColorArgb8:
		return ColorValue{ARGB: data, Width: 8}, nil
	case AttrTypeIntColorRgb8:
		return ColorValue{ARGB: data, Width: 6}, nil
	case AttrTypeIntColorArgb4:
		return ColorValue{ARGB: data, Width: 4}, nil
	case AttrTypeIntColorRgb4:
		return ColorValue{ARGB: data, Width: 3}, nil
	default:
		return IntValue{V: int32(data)}, nil
	}
}
