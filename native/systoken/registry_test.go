package systoken

import (
	"errors"
	"testing"

	"potchain/core/events"
	"potchain/core/types"
	"potchain/storage"
)

func newTestRegistry(t *testing.T, limits Limits) (*Registry, *storage.MemDB, *events.Recorder) {
	t.Helper()
	db := storage.NewMemDB()
	reg := NewRegistry(storage.NewKV(db, ""), limits)
	rec := &events.Recorder{}
	reg.SetEmitter(rec)
	return reg, db, rec
}

func snapshot(t *testing.T, db *storage.MemDB) map[string]string {
	t.Helper()
	keys, err := db.Keys(nil)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := db.Get(key)
		if err != nil {
			t.Fatalf("get %x: %v", key, err)
		}
		out[string(key)] = string(value)
	}
	return out
}

func TestRegisterAdjustsWeightByRate(t *testing.T) {
	reg, _, rec := newTestRegistry(t, DefaultLimits())
	token := types.NewSystemTokenID(1000, 1, 5)
	if err := reg.Register(token, []types.LocalLink{{ParaID: 1000, LocalAssetID: 5}}, 3, Metadata{Symbol: "USDT"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	adjusted, err := reg.AdjustWeight(token, types.NewVoteWeight(10))
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if adjusted.Cmp(types.NewVoteWeight(30)) != 0 {
		t.Fatalf("expected 30, got %s", adjusted)
	}
	if got := rec.Types(); len(got) != 1 || got[0] != events.TypeTokenRegistered {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestAdjustWeightPassesThroughUnregistered(t *testing.T) {
	reg, _, _ := newTestRegistry(t, DefaultLimits())
	raw := types.NewVoteWeight(42)
	adjusted, err := reg.AdjustWeight(types.NewSystemTokenID(7, 7, 7), raw)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if adjusted.Cmp(raw) != 0 {
		t.Fatalf("expected identity, got %s", adjusted)
	}
}

func TestAdjustWeightIsMonotonic(t *testing.T) {
	reg, _, _ := newTestRegistry(t, DefaultLimits())
	token := types.NewSystemTokenID(1, 0, 1)
	if err := reg.Register(token, nil, 1_000_000_007, Metadata{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	inputs := []types.VoteWeight{
		types.NewVoteWeight(0),
		types.NewVoteWeight(1),
		types.NewVoteWeight(1 << 40),
		types.NewVoteWeight(^uint64(0)),
		types.MaxVoteWeight(),
	}
	prev := types.NewVoteWeight(0)
	for _, in := range inputs {
		out, err := reg.AdjustWeight(token, in)
		if err != nil {
			t.Fatalf("adjust %s: %v", in, err)
		}
		if out.Cmp(prev) < 0 {
			t.Fatalf("adjust(%s)=%s decreased below %s", in, out, prev)
		}
		prev = out
	}
	if prev.Cmp(types.MaxVoteWeight()) != 0 {
		t.Fatalf("expected saturation at max, got %s", prev)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg, _, _ := newTestRegistry(t, DefaultLimits())
	a := types.NewSystemTokenID(1000, 50, 1)
	b := types.NewSystemTokenID(1000, 50, 2)
	link := types.LocalLink{ParaID: 2000, LocalAssetID: 9}
	if err := reg.Register(a, []types.LocalLink{link}, 1, Metadata{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(a, nil, 1, Metadata{}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered for token, got %v", err)
	}
	if err := reg.Register(b, []types.LocalLink{link}, 1, Metadata{}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered for link, got %v", err)
	}
	if ok, _ := reg.IsRegistered(b); ok {
		t.Fatalf("rejected registration must not persist the token")
	}
	dup := types.LocalLink{ParaID: 3000, LocalAssetID: 1}
	if err := reg.Register(b, []types.LocalLink{dup, dup}, 1, Metadata{}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered for repeated link, got %v", err)
	}
}

func TestRegisterRejectsZeroRate(t *testing.T) {
	reg, db, _ := newTestRegistry(t, DefaultLimits())
	if err := reg.Register(types.NewSystemTokenID(1, 1, 1), nil, 0, Metadata{}); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
	if len(snapshot(t, db)) != 0 {
		t.Fatalf("rejected registration wrote state")
	}
}

func TestRegisterCapacityChecksLeaveStateUntouched(t *testing.T) {
	reg, db, _ := newTestRegistry(t, Limits{MaxLinksPerToken: 2, MaxLinksPerPara: 2})
	tooMany := []types.LocalLink{{ParaID: 1, LocalAssetID: 1}, {ParaID: 1, LocalAssetID: 2}, {ParaID: 1, LocalAssetID: 3}}
	if err := reg.Register(types.NewSystemTokenID(1, 1, 1), tooMany, 1, Metadata{}); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for token links, got %v", err)
	}

	if err := reg.Register(types.NewSystemTokenID(1, 1, 1), tooMany[:2], 1, Metadata{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := snapshot(t, db)
	err := reg.Register(types.NewSystemTokenID(1, 1, 2), []types.LocalLink{{ParaID: 2, LocalAssetID: 1}, {ParaID: 1, LocalAssetID: 3}}, 1, Metadata{})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for para list, got %v", err)
	}
	after := snapshot(t, db)
	if len(before) != len(after) {
		t.Fatalf("para capacity failure mutated state: %d keys before, %d after", len(before), len(after))
	}
	if _, ok, _ := reg.ResolveLocal(2, 1); ok {
		t.Fatalf("link from rejected registration must not resolve")
	}
}

func TestCheckRegistrationsSeesWholeBatch(t *testing.T) {
	reg, db, _ := newTestRegistry(t, Limits{MaxLinksPerToken: 4, MaxLinksPerPara: 2})
	first := types.NewSystemTokenID(1, 1, 1)
	if err := reg.Register(first, []types.LocalLink{{ParaID: 7, LocalAssetID: 1}}, 1, Metadata{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	before := snapshot(t, db)

	a := types.NewSystemTokenID(2, 1, 1)
	b := types.NewSystemTokenID(2, 1, 2)
	shared := types.LocalLink{ParaID: 9, LocalAssetID: 5}
	cases := []struct {
		name  string
		batch []Registration
		want  error
	}{
		{"link shared across tokens", []Registration{
			{ID: a, Rate: 1, Links: []types.LocalLink{shared}},
			{ID: b, Rate: 1, Links: []types.LocalLink{shared}},
		}, ErrAlreadyRegistered},
		{"token repeated", []Registration{{ID: a, Rate: 1}, {ID: a, Rate: 2}}, ErrAlreadyRegistered},
		{"token already stored", []Registration{{ID: first, Rate: 1}}, ErrAlreadyRegistered},
		{"link already stored", []Registration{{ID: a, Rate: 1, Links: []types.LocalLink{{ParaID: 7, LocalAssetID: 1}}}}, ErrAlreadyRegistered},
		{"para cap across tokens", []Registration{
			{ID: a, Rate: 1, Links: []types.LocalLink{{ParaID: 7, LocalAssetID: 2}}},
			{ID: b, Rate: 1, Links: []types.LocalLink{{ParaID: 7, LocalAssetID: 3}}},
		}, ErrCapacityExceeded},
		{"zero rate", []Registration{{ID: a, Rate: 1}, {ID: b}}, ErrInvalidRate},
	}
	for _, tc := range cases {
		if err := reg.CheckRegistrations(tc.batch); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	ok := []Registration{
		{ID: a, Rate: 1, Links: []types.LocalLink{shared, {ParaID: 7, LocalAssetID: 2}}},
		{ID: b, Rate: 3},
	}
	if err := reg.CheckRegistrations(ok); err != nil {
		t.Fatalf("valid batch rejected: %v", err)
	}
	if after := snapshot(t, db); len(after) != len(before) {
		t.Fatalf("check wrote state: %d keys before, %d after", len(before), len(after))
	}
}

func TestRegisterRemoveRoundTrip(t *testing.T) {
	reg, db, rec := newTestRegistry(t, DefaultLimits())
	keep := types.NewSystemTokenID(0, 50, 1984)
	if err := reg.Register(keep, []types.LocalLink{{ParaID: 1000, LocalAssetID: 1}}, 2, Metadata{Symbol: "DOT"}); err != nil {
		t.Fatalf("register keep: %v", err)
	}
	before := snapshot(t, db)

	token := types.NewSystemTokenID(1000, 50, 7)
	links := []types.LocalLink{{ParaID: 1000, LocalAssetID: 7}, {ParaID: 2000, LocalAssetID: 70}}
	if err := reg.Register(token, links, 5, Metadata{Name: "Wrapped", Symbol: "WRP", Decimals: 6}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resolved, ok, err := reg.ResolveLocal(2000, 70)
	if err != nil || !ok || resolved != token {
		t.Fatalf("resolve: got %v ok=%v err=%v", resolved, ok, err)
	}
	assets, err := reg.ParaLinks(1000)
	if err != nil || len(assets) != 2 {
		t.Fatalf("para links: %v err=%v", assets, err)
	}

	if err := reg.Remove(token); err != nil {
		t.Fatalf("remove: %v", err)
	}
	after := snapshot(t, db)
	if len(before) != len(after) {
		t.Fatalf("expected %d keys after round trip, got %d", len(before), len(after))
	}
	for key, value := range before {
		if after[key] != value {
			t.Fatalf("key %x changed across round trip", key)
		}
	}
	if _, ok, _ := reg.ResolveLocal(2000, 70); ok {
		t.Fatalf("reverse link survived removal")
	}
	if err := reg.Remove(token); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}

	kinds := rec.Types()
	if kinds[len(kinds)-1] != events.TypeTokenRemoved {
		t.Fatalf("expected removal event last, got %v", kinds)
	}
}

func TestSetRateAndListing(t *testing.T) {
	reg, _, rec := newTestRegistry(t, DefaultLimits())
	b := types.NewSystemTokenID(2, 0, 0)
	a := types.NewSystemTokenID(1, 9, 9)
	for _, id := range []types.SystemTokenID{b, a} {
		if err := reg.Register(id, nil, 1, Metadata{}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if err := reg.SetRate(a, 4); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := reg.SetRate(a, 0); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
	if err := reg.SetRate(types.NewSystemTokenID(9, 9, 9), 2); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	tokens, err := reg.Tokens()
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if len(tokens) != 2 || tokens[0].ID != a || tokens[1].ID != b {
		t.Fatalf("unexpected ordering %+v", tokens)
	}
	if tokens[0].Rate != 4 {
		t.Fatalf("expected updated rate 4, got %d", tokens[0].Rate)
	}
	last := rec.Events()[len(rec.Events())-1]
	changed, ok := last.(events.TokenRateChanged)
	if !ok || changed.Old != 1 || changed.New != 4 {
		t.Fatalf("unexpected rate event %#v", last)
	}
}

func TestResolveLocalEmitsConversion(t *testing.T) {
	reg, _, rec := newTestRegistry(t, DefaultLimits())
	token := types.NewSystemTokenID(1000, 50, 1)
	if err := reg.Register(token, []types.LocalLink{{ParaID: 3000, LocalAssetID: 11}}, 1, Metadata{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec.Reset()
	if _, ok, err := reg.ResolveLocal(3000, 12); ok || err != nil {
		t.Fatalf("unexpected hit ok=%v err=%v", ok, err)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("miss must not emit")
	}
	if _, ok, _ := reg.ResolveLocal(3000, 11); !ok {
		t.Fatalf("expected hit")
	}
	if got := rec.Types(); len(got) != 1 || got[0] != events.TypeTokenConverted {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestNilRegistry(t *testing.T) {
	var reg *Registry
	if err := reg.Register(types.SystemTokenID{}, nil, 1, Metadata{}); err == nil {
		t.Fatalf("expected error from nil registry")
	}
}

func TestRegisterNormalisesMetadata(t *testing.T) {
	reg, _, _ := newTestRegistry(t, DefaultLimits())
	token := types.NewSystemTokenID(1000, 50, 1984)
	// "e" followed by a combining acute accent composes to a single rune.
	meta := Metadata{Name: "  Cafe\u0301 Dollar ", Symbol: " CUSD\t", Decimals: 6}
	if err := reg.Register(token, nil, 1, meta); err != nil {
		t.Fatalf("register: %v", err)
	}
	stored, ok, err := reg.Token(token)
	if err != nil || !ok {
		t.Fatalf("token lookup: ok=%v err=%v", ok, err)
	}
	if stored.Metadata.Name != "Caf\u00e9 Dollar" || stored.Metadata.Symbol != "CUSD" {
		t.Fatalf("unexpected metadata %+v", stored.Metadata)
	}

	long := Metadata{Symbol: "ABCDEFGHIJKLMNOPQ"}
	if err := reg.Register(types.NewSystemTokenID(1, 1, 1), nil, 1, long); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected invalid metadata, got %v", err)
	}
}
