package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"potchain/core/era"
	"potchain/core/events"
	"potchain/core/genesis"
	"potchain/core/types"
	"potchain/native/fees"
	"potchain/native/pot"
	"potchain/native/systoken"
	"potchain/storage"
)

// ErrGenesisApplied is returned when genesis is applied to a database that
// already holds runtime state.
var ErrGenesisApplied = errors.New("core: genesis already applied")

var genesisMarkerKey = []byte("runtime/genesis")

// RuntimeConfig wires the runtime components.
type RuntimeConfig struct {
	Election            pot.Params
	MaxVoteNum          uint32
	ResetLedgerOnNewEra bool
	Era                 era.Config
	Registry            systoken.Limits
	Fees                fees.Policy
	FeeTable            *fees.Table
	FeeCollector        types.AccountID
	// Charger defaults to a BalanceCharger kept in the runtime database.
	Charger     fees.Charger
	Distributor era.RewardDistributor
	Emitter     events.Emitter
	Logger      *slog.Logger
}

// Runtime owns the registry, ledger, election engine, era machine and fee
// bridge. Every entry point holds one lock so operations apply one at a time
// in call order.
type Runtime struct {
	mu          sync.Mutex
	kv          *storage.KV
	registry    *systoken.Registry
	ledger      *pot.Ledger
	election    *pot.Engine
	eras        *era.Machine
	bridge      *fees.Bridge
	balances    *fees.BalanceCharger
	resetLedger bool
	emitter     events.Emitter
	logger      *slog.Logger
}

// EraStatus summarises the era machine for queries.
type EraStatus struct {
	Started       bool        `json:"started"`
	Era           uint32      `json:"era"`
	StartSession  uint32      `json:"startSession"`
	ActiveSession uint32      `json:"activeSession"`
	Forcing       era.Forcing `json:"forcing"`
}

// NewRuntime restores every component from db.
func NewRuntime(db storage.Database, cfg RuntimeConfig) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	if err := cfg.Registry.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	maxVotes := cfg.MaxVoteNum
	if maxVotes == 0 {
		maxVotes = pot.DefaultMaxVoteNum
	}

	kv := storage.NewKV(db, "potchain/")
	registry := systoken.NewRegistry(kv, cfg.Registry)
	ledger, err := pot.NewLedger(kv, maxVotes)
	if err != nil {
		return nil, err
	}
	election, err := pot.NewEngine(kv, ledger, cfg.Election)
	if err != nil {
		return nil, err
	}
	distributor := cfg.Distributor
	if distributor == nil {
		distributor = era.LogRewardDistributor{Logger: logger}
	}
	eras, err := era.NewMachine(kv, election, distributor, cfg.Era)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		kv:          kv,
		registry:    registry,
		ledger:      ledger,
		election:    election,
		eras:        eras,
		resetLedger: cfg.ResetLedgerOnNewEra,
		emitter:     emitter,
		logger:      logger.With("component", "runtime"),
	}
	charger := cfg.Charger
	if charger == nil {
		r.balances = fees.NewBalanceCharger(kv, cfg.FeeCollector)
		charger = r.balances
	}
	table := cfg.FeeTable
	if table == nil {
		if table, err = fees.NewTable(0, nil); err != nil {
			return nil, err
		}
	}
	bridge, err := fees.NewBridge(registry, ledger, charger, table, cfg.Fees)
	if err != nil {
		return nil, err
	}
	r.bridge = bridge

	registry.SetEmitter(emitter)
	registry.SetLogger(logger)
	ledger.SetEmitter(emitter)
	ledger.SetLogger(logger)
	election.SetEmitter(emitter)
	election.SetLogger(logger)
	eras.SetEmitter(emitter)
	eras.SetLogger(logger)
	bridge.SetEmitter(emitter)
	bridge.SetLogger(logger)
	return r, nil
}

// --- administrative operations ---

// RegisterSystemToken registers a system token with its local links and rate.
func (r *Runtime) RegisterSystemToken(id types.SystemTokenID, links []types.LocalLink, rate uint64, meta systoken.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.Register(id, links, rate, meta)
}

// RemoveSystemToken removes a system token and its links.
func (r *Runtime) RemoveSystemToken(id types.SystemTokenID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.Remove(id)
}

// SetSystemTokenRate updates a token's exchange rate.
func (r *Runtime) SetSystemTokenRate(id types.SystemTokenID, rate uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.SetRate(id, rate)
}

// SetSeedTrustCount updates the number of seed trust slots.
func (r *Runtime) SetSeedTrustCount(n uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.election.SetSeedTrustCount(n)
}

// SetTotalValidators updates the validator set size.
func (r *Runtime) SetTotalValidators(n uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.election.SetTotalValidators(n)
}

// AddSeedTrustValidator appends an account to the seed trust pool.
func (r *Runtime) AddSeedTrustValidator(who types.AccountID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.election.AddSeedTrustValidator(who)
}

// SetMinVoteThreshold updates the PoT eligibility threshold.
func (r *Runtime) SetMinVoteThreshold(threshold types.VoteWeight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.election.SetMinVoteThreshold(threshold)
}

// SetForcingMode replaces the era forcing mode.
func (r *Runtime) SetForcingMode(mode era.Forcing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eras.SetForcing(mode)
}

// --- session callbacks ---

// OnNewSession is called by the session engine at every session boundary. It
// returns the validator set of a newly started era, or false when the current
// set stays in place.
func (r *Runtime) OnNewSession(session uint32) ([]types.AccountID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	validators, elected, err := r.eras.NewSession(session)
	if err != nil {
		r.logger.Error("new session", "session", session, "error", err)
		return nil, false
	}
	if !elected {
		return nil, false
	}
	if r.resetLedger {
		current, _, _ := r.eras.CurrentEra()
		cleared, err := r.ledger.Reset()
		if err != nil {
			r.logger.Error("reset vote ledger", "era", current, "error", err)
		} else {
			r.emitter.Emit(events.VoteLedgerReset{Era: current, Entries: cleared})
		}
	}
	return validators, true
}

// OnSessionStart records the session that became active.
func (r *Runtime) OnSessionStart(session uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eras.StartSession(session)
}

// OnSessionEnd triggers reward distribution for the ended session.
func (r *Runtime) OnSessionEnd(ctx context.Context, session uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eras.EndSession(ctx, session)
}

// --- fee hooks ---

// PreDispatch withdraws the fee of a call about to be dispatched.
func (r *Runtime) PreDispatch(req fees.BeginRequest) (*fees.PaymentTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bridge.Begin(req)
}

// PostDispatch settles a ticket against the actual fee.
func (r *Runtime) PostDispatch(ticket *fees.PaymentTicket, actual uint64) (fees.FeeReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bridge.End(ticket, actual)
}

// CancelDispatch abandons a ticket that could not be settled and refunds the
// withdrawal.
func (r *Runtime) CancelDispatch(ticket *fees.PaymentTicket) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bridge.Cancel(ticket)
}

// --- queries ---

// EraStatus returns the era counters and forcing mode.
func (r *Runtime) EraStatus() EraStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := EraStatus{
		Started:       r.eras.Started(),
		ActiveSession: r.eras.ActiveSession(),
		Forcing:       r.eras.Forcing(),
	}
	if status.Started {
		status.Era, status.StartSession, _ = r.eras.CurrentEra()
	}
	return status
}

// EraStartSession returns the session at which era began.
func (r *Runtime) EraStartSession(index uint32) (uint32, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eras.EraStartSession(index)
}

// PotValidators returns the PoT slice recorded for an era.
func (r *Runtime) PotValidators(index uint32) ([]types.AccountID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.election.PotValidators(index)
}

// LastElected returns the most recently elected validator set.
func (r *Runtime) LastElected() ([]types.AccountID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.election.LastElected()
}

// ElectionParams returns the active election parameters.
func (r *Runtime) ElectionParams() pot.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.election.Params()
}

// SeedTrustPool returns the ordered seed trust pool.
func (r *Runtime) SeedTrustPool() []types.AccountID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.election.SeedTrustPool()
}

// LedgerEntries returns the vote ledger in insertion order.
func (r *Runtime) LedgerEntries() []pot.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Entries()
}

// LedgerCapacity returns the entry cap of the vote ledger.
func (r *Runtime) LedgerCapacity() uint32 {
	return r.ledger.MaxVoteNum()
}

// SystemTokens lists the registered system tokens.
func (r *Runtime) SystemTokens() ([]systoken.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.Tokens()
}

// ResolveLocalAsset maps a chain-local asset to its system token.
func (r *Runtime) ResolveLocalAsset(paraID, localAssetID uint32) (types.SystemTokenID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.ResolveLocal(paraID, localAssetID)
}

// Balance returns a fee balance held by the built-in charger.
func (r *Runtime) Balance(account types.AccountID, token *types.SystemTokenID) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balances == nil {
		return 0, fmt.Errorf("core: balances are managed by an external charger")
	}
	return r.balances.Balance(account, token)
}

// CreditBalance funds an account in the built-in charger.
func (r *Runtime) CreditBalance(account types.AccountID, token *types.SystemTokenID, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.balances == nil {
		return fmt.Errorf("core: balances are managed by an external charger")
	}
	return r.balances.Credit(account, token, amount)
}

// --- genesis ---

// GenesisApplied reports whether genesis state has been written.
func (r *Runtime) GenesisApplied() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kv.KVGet(genesisMarkerKey, nil)
}

// ApplyGenesis writes the initial state described by spec. It may run once
// per database.
func (r *Runtime) ApplyGenesis(spec *genesis.GenesisSpec) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	applied, err := r.kv.KVGet(genesisMarkerKey, nil)
	if err != nil {
		return err
	}
	if applied {
		return ErrGenesisApplied
	}
	if err := r.checkGenesis(spec); err != nil {
		return err
	}

	if err := r.applyCounts(spec.TotalValidators, spec.SeedTrustCount); err != nil {
		return fmt.Errorf("genesis validator counts: %w", err)
	}
	existing := make(map[types.AccountID]struct{})
	for _, who := range r.election.SeedTrustPool() {
		existing[who] = struct{}{}
	}
	for _, who := range spec.SeedTrust {
		if _, ok := existing[who]; ok {
			continue
		}
		if err := r.election.AddSeedTrustValidator(who); err != nil {
			return fmt.Errorf("genesis seed trust %s: %w", who, err)
		}
	}
	if spec.MinVoteThreshold != nil {
		if err := r.election.SetMinVoteThreshold(*spec.MinVoteThreshold); err != nil {
			return err
		}
	}
	if spec.ForceEra != nil {
		if err := r.eras.SetForcing(*spec.ForceEra); err != nil {
			return err
		}
	}
	for _, token := range spec.SystemTokens {
		if err := r.registry.Register(token.ID, token.Links, token.Rate, token.Metadata); err != nil {
			return fmt.Errorf("genesis token %s: %w", token.ID, err)
		}
	}
	if spec.PotEnabledAtGenesis {
		for _, vote := range spec.VoteStatus {
			if err := r.ledger.Accumulate(vote.Token, vote.Candidate, vote.Weight); err != nil {
				return fmt.Errorf("genesis vote for %s: %w", vote.Candidate, err)
			}
		}
	}
	for _, bal := range spec.Balances {
		if err := r.balances.Credit(bal.Account, bal.Token, bal.Amount); err != nil {
			return fmt.Errorf("genesis balance %s: %w", bal.Account, err)
		}
	}
	if err := r.kv.KVPut(genesisMarkerKey, true); err != nil {
		return err
	}
	r.logger.Info("genesis applied",
		"seedTrust", len(spec.SeedTrust),
		"systemTokens", len(spec.SystemTokens),
		"votes", len(spec.VoteStatus))
	return nil
}

// checkGenesis runs every check ApplyGenesis depends on before the first
// write, so a rejected spec leaves state untouched and can be fixed and
// retried.
func (r *Runtime) checkGenesis(spec *genesis.GenesisSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if len(spec.Balances) > 0 && r.balances == nil {
		return fmt.Errorf("genesis balances require the built-in charger")
	}

	params := r.election.Params()
	if spec.TotalValidators != nil {
		params.TotalValidators = *spec.TotalValidators
	}
	if spec.SeedTrustCount != nil {
		params.SeedTrustValidators = *spec.SeedTrustCount
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("genesis validator counts: %w", err)
	}

	batch := make([]systoken.Registration, 0, len(spec.SystemTokens))
	for _, token := range spec.SystemTokens {
		batch = append(batch, systoken.Registration{ID: token.ID, Links: token.Links, Rate: token.Rate, Metadata: token.Metadata})
	}
	if err := r.registry.CheckRegistrations(batch); err != nil {
		return fmt.Errorf("genesis tokens: %w", err)
	}

	if spec.PotEnabledAtGenesis {
		votes := make([]pot.Entry, 0, len(spec.VoteStatus))
		for _, vote := range spec.VoteStatus {
			votes = append(votes, pot.Entry{Token: vote.Token, Candidate: vote.Candidate})
		}
		if err := r.ledger.CheckAccumulate(votes); err != nil {
			return fmt.Errorf("genesis votes: %w", err)
		}
	}

	type balanceKey struct {
		account types.AccountID
		token   types.SystemTokenID
		native  bool
	}
	totals := make(map[balanceKey]uint64, len(spec.Balances))
	for _, bal := range spec.Balances {
		key := balanceKey{account: bal.Account, native: bal.Token == nil}
		if bal.Token != nil {
			key.token = *bal.Token
		}
		current, ok := totals[key]
		if !ok {
			var err error
			if current, err = r.balances.Balance(bal.Account, bal.Token); err != nil {
				return err
			}
		}
		if current+bal.Amount < current {
			return fmt.Errorf("genesis balance %s: overflow", bal.Account)
		}
		totals[key] = current + bal.Amount
	}
	return nil
}

// applyCounts sets total and seed trust counts in whichever order keeps the
// seed count within the total at every step.
func (r *Runtime) applyCounts(total, seed *uint32) error {
	switch {
	case total != nil && seed != nil:
		if *seed > r.election.Params().TotalValidators {
			if err := r.election.SetTotalValidators(*total); err != nil {
				return err
			}
			return r.election.SetSeedTrustCount(*seed)
		}
		if err := r.election.SetSeedTrustCount(*seed); err != nil {
			return err
		}
		return r.election.SetTotalValidators(*total)
	case total != nil:
		return r.election.SetTotalValidators(*total)
	case seed != nil:
		return r.election.SetSeedTrustCount(*seed)
	}
	return nil
}
