package apkparser

import "testing"

func TestParseStringPoolChunkUTF8(t *testing.T) {
	data := buildUTF8Pool([]string{"hello", "world", ""})
	c := newCursor(data, false)

	pool, err := parseStringPoolChunk(c)
	if err != nil {
		t.Fatalf("parseStringPoolChunk: %v", err)
	}
	if c.pos_() != len(data) {
		t.Fatalf("cursor left at %d, want %d (end of chunk)", c.pos_(), len(data))
	}

	for i, want := range []string{"hello", "world", ""} {
		got, err := pool.get(uint32(i))
		if err != nil {
			t.Fatalf("get(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("get(%d) = %q, want %q", i, got, want)
		}
	}

	if _, err := pool.get(3); err == nil {
		t.Errorf("get(3) on a 3-entry pool should fail, got nil error")
	}
	if s, err := pool.getStrict(3, false); err != nil || s != "" {
		t.Errorf("getStrict(3, false) = (%q, %v), want (\"\", nil)", s, err)
	}
}

func TestStringPoolCache(t *testing.T) {
	data := buildUTF8Pool([]string{"cached"})
	pool, err := parseStringPoolChunk(newCursor(data, false))
	if err != nil {
		t.Fatalf("parseStringPoolChunk: %v", err)
	}

	first, err := pool.get(0)
	if err != nil {
		t.Fatalf("get(0): %v", err)
	}
	if _, cached := pool.cache[0]; !cached {
		t.Fatalf("expected index 0 to be cached after first get")
	}
	second, err := pool.get(0)
	if err != nil || second != first {
		t.Fatalf("second get(0) = (%q, %v), want (%q, nil)", second, err, first)
	}
}
