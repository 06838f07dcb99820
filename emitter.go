package apkparser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// ValuesDocument is one values[-qualifiers]/<bucket>.xml worth of non-file
// resources for a single package, configuration and type bucket.
type ValuesDocument struct {
	Package *Package
	Config  ConfigFlags
	Bucket  string // e.g. "strings", "colors", "arrays" -- the file's base name, no extension
	XML     []byte
}

// valuesBucket maps a resource type name to apktool's historical
// values*.xml file-naming convention. Types it doesn't special-case fall
// back to a naive pluralization, which matches every type aapt2 actually
// emits non-file values for.
func valuesBucket(typeName string) string {
	switch typeName {
	case "string":
		return "strings"
	case "plurals":
		return "plurals"
	case "array":
		return "arrays"
	case "style":
		return "styles"
	case "bool":
		return "bools"
	case "integer":
		return "integers"
	case "dimen":
		return "dimens"
	case "color":
		return "colors"
	case "id":
		return "ids"
	case "attr":
		return "attrs"
	case "":
		return "values"
	default:
		return typeName + "s"
	}
}

// sanitizeName applies apktool's historical "q" substitution: resource
// names decompiled from obfuscated/hand-built APKs occasionally carry a
// literal quote, which is legal in the binary format but not in an XML
// attribute value. This is display-only -- the stored ResSpec.Name is
// never touched, only what EmitPublicXML/EmitValues write out.
func sanitizeName(name string) string {
	if !strings.ContainsRune(name, '"') {
		return name
	}
	return strings.ReplaceAll(name, `"`, "q")
}

// EmitPublicXML renders apktool's public.xml: every resource of every main
// package, sorted by id, as <public type="..." name="..." id="0x..."></public>.
func EmitPublicXML(t *ResourceTable) ([]byte, error) {
	type entry struct {
		id   ResID
		typ  string
		name string
	}
	var entries []entry
	for _, pkg := range t.mainPackages {
		for _, ts := range pkg.typeSpecs {
			for _, spec := range ts.Specs {
				if spec == nil {
					continue
				}
				entries = append(entries, entry{id: spec.ID, typ: ts.Name, name: sanitizeName(spec.DisplayName())})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")

	root := xml.StartElement{Name: xml.Name{Local: "resources"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, e := range entries {
		el := xml.StartElement{
			Name: xml.Name{Local: "public"},
			Attr: []xml.Attr{
				{Name: xml.Name{Local: "type"}, Value: e.typ},
				{Name: xml.Name{Local: "name"}, Value: e.name},
				{Name: xml.Name{Local: "id"}, Value: fmt.Sprintf("0x%08x", uint32(e.id))},
			},
		}
		if err := enc.EncodeToken(el); err != nil {
			return nil, err
		}
		if err := enc.EncodeToken(xml.EndElement{Name: el.Name}); err != nil {
			return nil, err
		}
	}
	if err := enc.EncodeToken(xml.EndElement{Name: root.Name}); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// bucketKey groups resources by the (configuration, type bucket) pair that
// determines which values[-qualifiers]/<bucket>.xml document they land in.
type bucketKey struct {
	cfg    configKey
	bucket string
}

// EmitValues groups pkg's non-file resources by (configuration, type
// bucket) and renders one values[-qualifiers]/<bucket>.xml document per
// group, matching apktool's per-type file split (strings.xml, colors.xml,
// arrays.xml, ...) rather than one undifferentiated values.xml. t is used
// to resolve symbolic attribute/style-parent names inside bag values. With
// a nil t, or for an id t cannot resolve, attribute names are written as
// raw "0x..." ids and the style parent attribute is left out.
func EmitValues(t *ResourceTable, pkg *Package) ([]ValuesDocument, error) {
	byKey := map[bucketKey][]*Resource{}
	cfgs := map[configKey]ConfigFlags{}
	var order []bucketKey

	for _, ts := range pkg.typeSpecs {
		bucket := valuesBucket(ts.Name)
		for _, spec := range ts.Specs {
			if spec == nil {
				continue
			}
			for _, res := range spec.Configured() {
				if _, ok := res.Value.(FileValue); ok {
					continue
				}
				ck := res.Config.key()
				cfgs[ck] = res.Config
				k := bucketKey{cfg: ck, bucket: bucket}
				if _, seen := byKey[k]; !seen {
					order = append(order, k)
				}
				byKey[k] = append(byKey[k], res)
			}
		}
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if ca, cb := cfgs[a.cfg].Canonical(), cfgs[b.cfg].Canonical(); ca != cb {
			return ca < cb
		}
		return a.bucket < b.bucket
	})

	docs := make([]ValuesDocument, 0, len(order))
	for _, k := range order {
		resources := byKey[k]
		sort.Slice(resources, func(i, j int) bool { return resources[i].Spec.ID < resources[j].Spec.ID })
		data, err := emitValuesDocument(t, resources)
		if err != nil {
			return nil, err
		}
		docs = append(docs, ValuesDocument{Package: pkg, Config: cfgs[k.cfg], Bucket: k.bucket, XML: data})
	}
	return docs, nil
}

func emitValuesDocument(t *ResourceTable, resources []*Resource) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")

	root := xml.StartElement{Name: xml.Name{Local: "resources"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	for _, res := range resources {
		if err := emitOneResource(enc, t, res); err != nil {
			return nil, err
		}
	}

	if err := enc.EncodeToken(xml.EndElement{Name: root.Name}); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func emitOneResource(enc *xml.Encoder, t *ResourceTable, res *Resource) error {
	name := sanitizeName(res.Spec.DisplayName())
	typeName := ""
	if res.Spec.TypeSpec != nil {
		typeName = res.Spec.TypeSpec.Name
	}

	switch v := res.Value.(type) {
	case BagValue:
		return emitBagResource(enc, t, typeName, name, v)
	case StringValue:
		return emitLeaf(enc, "string", name, renderSpannedString(v.Raw, v.Spans))
	case BoolValue:
		s, _ := v.String()
		return emitLeaf(enc, "bool", name, s)
	case IntValue:
		if typeName == "id" {
			return emitSelfClosing(enc, "item", []xml.Attr{
				{Name: xml.Name{Local: "type"}, Value: "id"},
				{Name: xml.Name{Local: "name"}, Value: name},
			})
		}
		s, _ := v.String()
		return emitLeaf(enc, "integer", name, s)
	case ColorValue:
		s, _ := v.String()
		return emitLeaf(enc, "color", name, s)
	case DimensionValue:
		s, _ := v.String()
		return emitLeaf(enc, "dimen", name, s)
	case FractionValue:
		s, _ := v.String()
		return emitItemWithType(enc, "fraction", name, s)
	case NullValue:
		return emitSelfClosing(enc, "item", []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: typeName},
			{Name: xml.Name{Local: "name"}, Value: name},
		})
	default:
		s, err := v.String()
		if err != nil {
			return err
		}
		return emitItemWithType(enc, typeName, name, s)
	}
}

func emitBagResource(enc *xml.Encoder, t *ResourceTable, typeName, name string, v BagValue) error {
	switch typeName {
	case "array":
		return emitArray(enc, arrayElementName(v), name, t, v)
	case "plurals":
		return emitPlurals(enc, name, t, v)
	default:
		return emitStyle(enc, name, t, v)
	}
}

// arrayElementName picks apktool's <string-array>/<integer-array>/<array>
// element for a bag value, matching its single uniform child type when
// there is one and falling back to the generic form otherwise.
func arrayElementName(v BagValue) string {
	if len(v.Children) == 0 {
		return "array"
	}
	allString, allInt := true, true
	for _, child := range v.Children {
		switch child.Value.(type) {
		case StringValue:
			allInt = false
		case IntValue:
			allString = false
		default:
			allString, allInt = false, false
		}
	}
	switch {
	case allString:
		return "string-array"
	case allInt:
		return "integer-array"
	default:
		return "array"
	}
}

func emitArray(enc *xml.Encoder, elName, name string, t *ResourceTable, v BagValue) error {
	start := xml.StartElement{
		Name: xml.Name{Local: elName},
		Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: name}},
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, child := range v.Children {
		s, err := child.Value.String()
		if err != nil {
			return err
		}
		if err := emitTextElement(enc, "item", nil, s); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

func emitPlurals(enc *xml.Encoder, name string, t *ResourceTable, v BagValue) error {
	start := xml.StartElement{
		Name: xml.Name{Local: "plurals"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: name}},
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, child := range v.Children {
		quantity := attrDisplayName(t, child.AttrID)
		s, err := child.Value.String()
		if err != nil {
			return err
		}
		attrs := []xml.Attr{{Name: xml.Name{Local: "quantity"}, Value: quantity}}
		if err := emitTextElement(enc, "item", attrs, s); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

func emitStyle(enc *xml.Encoder, name string, t *ResourceTable, v BagValue) error {
	attrs := []xml.Attr{{Name: xml.Name{Local: "name"}, Value: name}}
	if v.Parent != 0 && t != nil {
		if res, err := t.DecodeReference(v.Parent, true); err == nil {
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "parent"}, Value: res.ResolvedName})
		}
	}
	start := xml.StartElement{Name: xml.Name{Local: "style"}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, child := range v.Children {
		attrName := attrDisplayName(t, child.AttrID)
		s, err := child.Value.String()
		if err != nil {
			return err
		}
		itemAttrs := []xml.Attr{{Name: xml.Name{Local: "name"}, Value: attrName}}
		if err := emitTextElement(enc, "item", itemAttrs, s); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

func attrDisplayName(t *ResourceTable, id ResID) string {
	if t != nil {
		if res, err := t.DecodeReference(id, false); err == nil {
			return strings.TrimPrefix(res.ResolvedName, "@")
		}
	}
	return fmt.Sprintf("0x%08x", uint32(id))
}

func emitLeaf(enc *xml.Encoder, elName, name, text string) error {
	attrs := []xml.Attr{{Name: xml.Name{Local: "name"}, Value: name}}
	return emitTextElement(enc, elName, attrs, text)
}

func emitItemWithType(enc *xml.Encoder, typeName, name, text string) error {
	attrs := []xml.Attr{
		{Name: xml.Name{Local: "type"}, Value: typeName},
		{Name: xml.Name{Local: "name"}, Value: name},
	}
	return emitTextElement(enc, "item", attrs, text)
}

func emitTextElement(enc *xml.Encoder, elName string, attrs []xml.Attr, text string) error {
	start := xml.StartElement{Name: xml.Name{Local: elName}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if text != "" {
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

func emitSelfClosing(enc *xml.Encoder, elName string, attrs []xml.Attr) error {
	start := xml.StartElement{Name: xml.Name{Local: elName}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

// renderSpannedString reconstructs inline markup ("<b>bold</b>") from a
// StringValue's style spans. Spans are assumed non-overlapping and sorted
// by FirstChar, which is what the string pool's encoder guarantees for
// every real-world sample seen; overlapping spans fall back to plain text
// around the offending tag rather than producing invalid XML.
func renderSpannedString(raw string, spans []StyleSpan) string {
	if len(spans) == 0 {
		return raw
	}
	runes := []rune(raw)
	ordered := append([]StyleSpan(nil), spans...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].FirstChar < ordered[j].FirstChar })

	var b strings.Builder
	pos := 0
	for _, sp := range ordered {
		first, last := int(sp.FirstChar), int(sp.LastChar)
		if first < pos || first > len(runes) || last >= len(runes) || last < first {
			continue
		}
		b.WriteString(string(runes[pos:first]))
		fmt.Fprintf(&b, "<%s>%s</%s>", sp.Name, string(runes[first:last+1]), sp.Name)
		pos = last + 1
	}
	b.WriteString(string(runes[pos:]))
	return b.String()
}
