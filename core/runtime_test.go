package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"potchain/core/era"
	"potchain/core/events"
	"potchain/core/genesis"
	"potchain/core/types"
	"potchain/native/fees"
	"potchain/native/pot"
	"potchain/native/systoken"
	"potchain/storage"
)

func acct(b byte) types.AccountID {
	var id types.AccountID
	id[0] = b
	return id
}

func newTestRuntime(t *testing.T, db storage.Database, mutate func(*RuntimeConfig)) (*Runtime, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	cfg := RuntimeConfig{
		Election:     pot.Params{TotalValidators: 5, SeedTrustValidators: 2, MinVoteThreshold: types.NewVoteWeight(50)},
		Era:          era.Config{SessionsPerEra: 2},
		Registry:     systoken.DefaultLimits(),
		Fees:         fees.Policy{StrictTokenPolicy: true},
		FeeCollector: acct(0xFE),
		Emitter:      rec,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := NewRuntime(db, cfg)
	require.NoError(t, err)
	return rt, rec
}

func TestRuntimeFeesDriveElection(t *testing.T) {
	rt, _ := newTestRuntime(t, storage.NewMemDB(), nil)
	token := types.NewSystemTokenID(1000, 1, 5)
	require.NoError(t, rt.RegisterSystemToken(token, []types.LocalLink{{ParaID: 1000, LocalAssetID: 5}}, 1, systoken.Metadata{Symbol: "USDT"}))
	for _, who := range []types.AccountID{acct(0xA), acct(0xB), acct(0xF)} {
		require.NoError(t, rt.AddSeedTrustValidator(who))
	}

	payer := acct(0x01)
	require.NoError(t, rt.balances.Credit(payer, &token, 1_000))
	for _, vote := range []struct {
		who types.AccountID
		fee uint64
	}{{acct(0xC), 100}, {acct(0xD), 90}, {acct(0xE), 10}} {
		who := vote.who
		ticket, err := rt.PreDispatch(fees.BeginRequest{Payer: payer, Candidate: &who, Token: &token, EstimatedFee: vote.fee})
		require.NoError(t, err)
		_, err = rt.PostDispatch(ticket, vote.fee)
		require.NoError(t, err)
	}

	validators, elected := rt.OnNewSession(0)
	require.True(t, elected)
	require.Equal(t, []types.AccountID{acct(0xA), acct(0xB), acct(0xC), acct(0xD)}, validators)

	pots, ok, err := rt.PotValidators(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []types.AccountID{acct(0xC), acct(0xD)}, pots)

	_, elected = rt.OnNewSession(1)
	require.False(t, elected)
	_, elected = rt.OnNewSession(2)
	require.True(t, elected)
	require.Equal(t, uint32(1), rt.EraStatus().Era)
}

func TestRuntimeForceNewScenario(t *testing.T) {
	rt, rec := newTestRuntime(t, storage.NewMemDB(), func(cfg *RuntimeConfig) {
		cfg.Era.SessionsPerEra = 50
	})
	require.NoError(t, rt.AddSeedTrustValidator(acct(0xA)))
	_, elected := rt.OnNewSession(0)
	require.True(t, elected)

	require.NoError(t, rt.SetForcingMode(era.ForceNew))
	rec.Reset()
	_, elected = rt.OnNewSession(1)
	require.True(t, elected)
	require.Equal(t, era.NotForcing, rt.EraStatus().Forcing)
	require.Contains(t, rec.Types(), events.TypeForceEra)
}

func TestRuntimeAdminValidation(t *testing.T) {
	rt, _ := newTestRuntime(t, storage.NewMemDB(), nil)
	require.ErrorIs(t, rt.SetSeedTrustCount(6), pot.ErrSeedTrustExceedsTotal)
	require.ErrorIs(t, rt.SetTotalValidators(1), pot.ErrSeedTrustExceedsTotal)
	require.NoError(t, rt.AddSeedTrustValidator(acct(1)))
	require.ErrorIs(t, rt.AddSeedTrustValidator(acct(1)), pot.ErrDuplicateSeedTrust)
	require.ErrorIs(t, rt.RemoveSystemToken(types.NewSystemTokenID(1, 2, 3)), systoken.ErrNotRegistered)
	require.NoError(t, rt.SetMinVoteThreshold(types.NewVoteWeight(7)))
	require.Equal(t, 0, rt.ElectionParams().MinVoteThreshold.Cmp(types.NewVoteWeight(7)))
}

func TestRuntimeResetsLedgerOnNewEra(t *testing.T) {
	rt, rec := newTestRuntime(t, storage.NewMemDB(), func(cfg *RuntimeConfig) {
		cfg.ResetLedgerOnNewEra = true
		cfg.Election.MinVoteThreshold = types.NewVoteWeight(0)
	})
	token := types.NewSystemTokenID(1, 1, 1)
	require.NoError(t, rt.RegisterSystemToken(token, nil, 2, systoken.Metadata{}))
	payer := acct(0x01)
	require.NoError(t, rt.balances.Credit(payer, &token, 100))
	who := acct(0xC)
	ticket, err := rt.PreDispatch(fees.BeginRequest{Payer: payer, Candidate: &who, Token: &token, EstimatedFee: 5})
	require.NoError(t, err)
	receipt, err := rt.PostDispatch(ticket, 5)
	require.NoError(t, err)
	require.NotNil(t, receipt.Vote)
	require.Len(t, rt.LedgerEntries(), 1)

	validators, elected := rt.OnNewSession(0)
	require.True(t, elected)
	require.Equal(t, []types.AccountID{who}, validators)
	require.Empty(t, rt.LedgerEntries())
	require.Contains(t, rec.Types(), events.TypeVoteLedgerReset)
}

func TestRuntimeGenesisAndRestart(t *testing.T) {
	db := storage.NewMemDB()
	rt, _ := newTestRuntime(t, db, nil)

	total, seed := uint32(3), uint32(3)
	force := era.ForceAlways
	spec := &genesis.GenesisSpec{
		TotalValidators:     &total,
		SeedTrustCount:      &seed,
		SeedTrust:           []types.AccountID{acct(0xA), acct(0xB)},
		ForceEra:            &force,
		PotEnabledAtGenesis: true,
		VoteStatus: []genesis.VoteSpec{
			{Token: types.NewSystemTokenID(1, 0, 0), Candidate: acct(0xC), Weight: types.NewVoteWeight(60)},
		},
		SystemTokens: []genesis.TokenSpec{
			{ID: types.NewSystemTokenID(1, 0, 0), Rate: 2, Links: []types.LocalLink{{ParaID: 1, LocalAssetID: 9}}},
		},
		Balances: []genesis.BalanceSpec{{Account: acct(0x01), Amount: 500}},
	}
	require.NoError(t, rt.ApplyGenesis(spec))
	require.ErrorIs(t, rt.ApplyGenesis(spec), ErrGenesisApplied)

	params := rt.ElectionParams()
	require.Equal(t, uint32(3), params.TotalValidators)
	require.Equal(t, uint32(3), params.SeedTrustValidators)
	balance, err := rt.Balance(acct(0x01), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(500), balance)

	_, elected := rt.OnNewSession(4)
	require.True(t, elected)
	require.NoError(t, rt.OnSessionStart(4))
	require.NoError(t, rt.OnSessionEnd(context.Background(), 4))

	restarted, _ := newTestRuntime(t, db, nil)
	applied, err := restarted.GenesisApplied()
	require.NoError(t, err)
	require.True(t, applied)
	status := restarted.EraStatus()
	require.True(t, status.Started)
	require.Equal(t, uint32(4), status.StartSession)
	require.Equal(t, uint32(4), status.ActiveSession)
	require.Equal(t, era.ForceAlways, status.Forcing)
	require.Equal(t, []types.AccountID{acct(0xA), acct(0xB)}, restarted.SeedTrustPool())
	require.Len(t, restarted.LedgerEntries(), 1)

	resolved, ok, err := restarted.ResolveLocalAsset(1, 9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.NewSystemTokenID(1, 0, 0), resolved)
	tokens, err := restarted.SystemTokens()
	require.NoError(t, err)
	require.Len(t, tokens, 1)
}

func TestRuntimeRejectedGenesisCanBeRetried(t *testing.T) {
	db := storage.NewMemDB()
	rt, rec := newTestRuntime(t, db, nil)

	total := uint32(4)
	shared := types.LocalLink{ParaID: 1000, LocalAssetID: 5}
	spec := &genesis.GenesisSpec{
		TotalValidators: &total,
		SeedTrust:       []types.AccountID{acct(0xA)},
		SystemTokens: []genesis.TokenSpec{
			{ID: types.NewSystemTokenID(1, 0, 0), Rate: 1, Links: []types.LocalLink{shared}},
			{ID: types.NewSystemTokenID(2, 0, 0), Rate: 1, Links: []types.LocalLink{shared}},
		},
		Balances: []genesis.BalanceSpec{{Account: acct(0x01), Amount: 500}},
	}
	keysBefore, err := db.Keys(nil)
	require.NoError(t, err)
	eventsBefore := len(rec.Events())

	require.ErrorIs(t, rt.ApplyGenesis(spec), systoken.ErrAlreadyRegistered)
	keysAfter, err := db.Keys(nil)
	require.NoError(t, err)
	require.Len(t, keysAfter, len(keysBefore))
	require.Len(t, rec.Events(), eventsBefore)
	require.Empty(t, rt.SeedTrustPool())
	require.Equal(t, uint32(5), rt.ElectionParams().TotalValidators)
	applied, err := rt.GenesisApplied()
	require.NoError(t, err)
	require.False(t, applied)

	spec.SystemTokens = spec.SystemTokens[:1]
	require.NoError(t, rt.ApplyGenesis(spec))
	require.Equal(t, []types.AccountID{acct(0xA)}, rt.SeedTrustPool())
	require.Equal(t, uint32(4), rt.ElectionParams().TotalValidators)
	resolved, ok, err := rt.ResolveLocalAsset(1000, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.NewSystemTokenID(1, 0, 0), resolved)
	balance, err := rt.Balance(acct(0x01), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(500), balance)
}

func TestRuntimeGenesisRejectsVoteOverflowBeforeWriting(t *testing.T) {
	rt, _ := newTestRuntime(t, storage.NewMemDB(), func(cfg *RuntimeConfig) {
		cfg.MaxVoteNum = 1
	})
	token := types.NewSystemTokenID(1, 0, 0)
	spec := &genesis.GenesisSpec{
		SeedTrust:           []types.AccountID{acct(0xA)},
		PotEnabledAtGenesis: true,
		VoteStatus: []genesis.VoteSpec{
			{Token: token, Candidate: acct(0xC), Weight: types.NewVoteWeight(60)},
			{Token: token, Candidate: acct(0xD), Weight: types.NewVoteWeight(60)},
		},
	}
	require.ErrorIs(t, rt.ApplyGenesis(spec), pot.ErrStaleVote)
	require.Empty(t, rt.LedgerEntries())
	require.Empty(t, rt.SeedTrustPool())

	spec.VoteStatus = spec.VoteStatus[:1]
	require.NoError(t, rt.ApplyGenesis(spec))
	require.Len(t, rt.LedgerEntries(), 1)
}
