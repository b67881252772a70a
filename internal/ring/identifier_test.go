package ring

import "testing"

func TestNewSpace(t *testing.T) {
	sp, err := NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace(8) returned error: %v", err)
	}
	if sp.ByteLen != 1 {
		t.Errorf("ByteLen = %d, expected 1", sp.ByteLen)
	}

	if _, err := NewSpace(0); err == nil {
		t.Error("NewSpace(0) should return an error")
	}
}

func TestIDFromStringDeterministic(t *testing.T) {
	sp, _ := NewSpace(160)
	a := sp.IDFromString("node-1")
	b := sp.IDFromString("node-1")
	if !a.Equal(b) {
		t.Error("IDFromString should be deterministic for the same input")
	}

	c := sp.IDFromString("node-2")
	if a.Equal(c) {
		t.Error("IDFromString should differ for different input (with overwhelming probability)")
	}
}

func TestIsValidID(t *testing.T) {
	sp, _ := NewSpace(4) // ByteLen = 1, top 4 bits must be zero

	if err := sp.IsValidID([]byte{0x0F}); err != nil {
		t.Errorf("0x0F should be valid in a 4-bit space: %v", err)
	}
	if err := sp.IsValidID([]byte{0xF0}); err == nil {
		t.Error("0xF0 should be invalid in a 4-bit space (top bits set)")
	}
	if err := sp.IsValidID([]byte{0x00, 0x00}); err == nil {
		t.Error("wrong length should be invalid")
	}
}

func TestFromHexStringRoundTrip(t *testing.T) {
	sp, _ := NewSpace(160)
	id := sp.IDFromString("hello")

	parsed, err := sp.FromHexString(id.ToHexString(true))
	if err != nil {
		t.Fatalf("FromHexString failed: %v", err)
	}
	if !parsed.Equal(id) {
		t.Errorf("round trip mismatch: got %v want %v", parsed, id)
	}

	if _, err := sp.FromHexString(""); err == nil {
		t.Error("empty hex string should be an error")
	}
}

func TestBetween(t *testing.T) {
	sp, _ := NewSpace(8)
	a := ID{10}
	b := ID{20}
	x := ID{15}

	if !x.Between(a, b) {
		t.Error("15 should be in (10, 20]")
	}
	if a.Between(a, b) {
		t.Error("10 should not be in (10, 20]")
	}
	if !b.Between(a, b) {
		t.Error("20 should be in (10, 20] (closed on the right)")
	}

	// Wrap-around case: a > b
	wrapA := ID{200}
	wrapB := ID{50}
	wrapX := ID{250}
	if !wrapX.Between(wrapA, wrapB) {
		t.Error("250 should be in wrap-around interval (200, 50]")
	}
	wrapY := ID{100}
	if wrapY.Between(wrapA, wrapB) {
		t.Error("100 should not be in wrap-around interval (200, 50]")
	}

	// Singleton ring: (a, a] covers everything.
	if !x.Between(a, a) {
		t.Error("(a, a] must cover the whole ring")
	}

	_ = sp
}

func TestBetweenOpen(t *testing.T) {
	a := ID{10}
	b := ID{20}
	if ID(a).BetweenOpen(a, b) {
		t.Error("a should not be strictly between (a, b)")
	}
	if ID(b).BetweenOpen(a, b) {
		t.Error("b should not be strictly between (a, b)")
	}
	mid := ID{15}
	if !mid.BetweenOpen(a, b) {
		t.Error("15 should be strictly between (10, 20)")
	}
}

func TestAddPow2(t *testing.T) {
	sp, _ := NewSpace(8)
	base := ID{250}
	out, err := sp.AddPow2(base, 3) // 250 + 8 = 258 mod 256 = 2
	if err != nil {
		t.Fatalf("AddPow2 failed: %v", err)
	}
	if out[0] != 2 {
		t.Errorf("AddPow2(250, 3) = %d, expected 2 (wrap-around)", out[0])
	}
}
