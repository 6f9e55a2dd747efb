package types

import (
	"encoding/json"
	"testing"
)

func TestAccountIDTextRoundTrip(t *testing.T) {
	raw := "0x0a000000000000000000000000000000000000000000000000000000000000ff"
	id, err := ParseAccountID(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id[0] != 0x0a || id[31] != 0xff {
		t.Fatalf("unexpected bytes %x", id)
	}
	encoded, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != `"`+raw+`"` {
		t.Fatalf("unexpected json %s", encoded)
	}
	var decoded AccountID
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != id {
		t.Fatalf("round trip mismatch")
	}
	for _, bad := range []string{"", "0x01", "0a00", "0xzz"} {
		if _, err := ParseAccountID(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestAccountHelpers(t *testing.T) {
	a, b := AccountID{0x01}, AccountID{0x02}
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 || a.Compare(a) != 0 {
		t.Fatalf("compare ordering broken")
	}
	if !(AccountID{}).IsZero() || a.IsZero() {
		t.Fatalf("IsZero mismatch")
	}
	in := []AccountID{a, b}
	clone := CloneAccounts(in)
	clone[0] = b
	if in[0] != a {
		t.Fatalf("clone aliases input")
	}
	if !AccountsEqual(in, []AccountID{a, b}) || AccountsEqual(in, []AccountID{b, a}) {
		t.Fatalf("AccountsEqual mismatch")
	}
	if CloneAccounts(nil) == nil {
		t.Fatalf("clone of nil should be empty, not nil")
	}
}

func TestSystemTokenIDOrderingAndParse(t *testing.T) {
	low := NewSystemTokenID(1, 50, 9)
	high := NewSystemTokenID(2, 0, 0)
	if low.Compare(high) >= 0 {
		t.Fatalf("para id should dominate ordering")
	}
	if string(low.Bytes()) >= string(high.Bytes()) {
		t.Fatalf("byte encoding does not preserve ordering")
	}
	parsed, err := ParseSystemTokenID(low.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != low {
		t.Fatalf("round trip mismatch: %v", parsed)
	}
	for _, bad := range []string{"1/2", "1/2/x", "1/2/4294967296"} {
		if _, err := ParseSystemTokenID(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if got := (LocalLink{ParaID: 2000, LocalAssetID: 7}).String(); got != "2000:7" {
		t.Fatalf("unexpected link string %q", got)
	}
}
