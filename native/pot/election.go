package pot

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"potchain/core/events"
	"potchain/core/types"
	"potchain/observability/metrics"
)

var (
	ErrDuplicateSeedTrust = errors.New("pot: account already in seed trust pool")
	ErrInvariantViolation = errors.New("pot: elected set exceeds total validators")
)

// Ranker supplies the PoT candidates ordered by accumulated weight. Accounts
// in exclude hold a seed trust slot and must not be ranked.
type Ranker interface {
	TopK(k int, minThreshold types.VoteWeight, exclude ...types.AccountID) []types.AccountID
}

type electionState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type accountList struct {
	Accounts []types.AccountID
}

// Pool is the validator set elected for one era. The seed trust slice always
// precedes the PoT slice.
type Pool struct {
	Era        uint32            `json:"era"`
	SeedTrust  []types.AccountID `json:"seedTrust"`
	Pot        []types.AccountID `json:"pot"`
	PotEnabled bool              `json:"potEnabled"`
}

// Validators returns the concatenated validator set.
func (p Pool) Validators() []types.AccountID {
	out := make([]types.AccountID, 0, len(p.SeedTrust)+len(p.Pot))
	out = append(out, p.SeedTrust...)
	return append(out, p.Pot...)
}

// Engine elects validator sets from the seed trust pool and the vote ledger.
type Engine struct {
	mu        sync.Mutex
	state     electionState
	ranker    Ranker
	params    Params
	seedPool  []types.AccountID
	emitter   events.Emitter
	logger    *slog.Logger
	telemetry *metrics.PotMetrics
}

// NewEngine constructs an election engine. Parameters and the seed trust
// pool already persisted in state take precedence over defaults so a restarted
// node keeps administrative changes.
func NewEngine(state electionState, ranker Ranker, defaults Params) (*Engine, error) {
	if state == nil {
		return nil, errors.New("pot: election state not configured")
	}
	if ranker == nil {
		return nil, errors.New("pot: ranker not configured")
	}
	e := &Engine{
		state:     state,
		ranker:    ranker,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default().With("component", "pot.election"),
		telemetry: metrics.Pot(),
	}
	var stored Params
	ok, err := state.KVGet(paramsKey, &stored)
	if err != nil {
		return nil, fmt.Errorf("pot: load params: %w", err)
	}
	if !ok {
		if err := defaults.Validate(); err != nil {
			return nil, err
		}
		if err := state.KVPut(paramsKey, defaults); err != nil {
			return nil, err
		}
		stored = defaults
	}
	e.params = stored
	var pool accountList
	if _, err := state.KVGet(seedPoolKey, &pool); err != nil {
		return nil, fmt.Errorf("pot: load seed trust pool: %w", err)
	}
	e.seedPool = pool.Accounts
	return e, nil
}

// SetEmitter configures the event emitter used for election events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger replaces the component logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.mu.Lock()
	e.logger = logger.With("component", "pot.election")
	e.mu.Unlock()
}

// Params returns the active election parameters.
func (e *Engine) Params() Params {
	if e == nil {
		return Params{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SeedTrustPool returns the ordered seed trust pool.
func (e *Engine) SeedTrustPool() []types.AccountID {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.CloneAccounts(e.seedPool)
}

func (e *Engine) storeParams(next Params) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if err := e.state.KVPut(paramsKey, next); err != nil {
		return err
	}
	e.params = next
	return nil
}

// SetSeedTrustCount updates the number of seed trust slots.
func (e *Engine) SetSeedTrustCount(n uint32) error {
	if e == nil {
		return errors.New("pot: engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.params
	old := next.SeedTrustValidators
	next.SeedTrustValidators = n
	if err := e.storeParams(next); err != nil {
		return err
	}
	e.emitter.Emit(events.SeedTrustNumChanged{Old: old, New: n})
	return nil
}

// SetTotalValidators updates the validator set size.
func (e *Engine) SetTotalValidators(n uint32) error {
	if e == nil {
		return errors.New("pot: engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.params
	old := next.TotalValidators
	next.TotalValidators = n
	if err := e.storeParams(next); err != nil {
		return err
	}
	e.emitter.Emit(events.TotalValidatorsChanged{Old: old, New: n})
	return nil
}

// SetMinVoteThreshold updates the weight a candidate needs to enter the PoT
// slice.
func (e *Engine) SetMinVoteThreshold(threshold types.VoteWeight) error {
	if e == nil {
		return errors.New("pot: engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.params
	old := next.MinVoteThreshold
	next.MinVoteThreshold = threshold
	if err := e.storeParams(next); err != nil {
		return err
	}
	e.emitter.Emit(events.MinVotePointsChanged{Old: old, New: threshold})
	return nil
}

// AddSeedTrustValidator appends an account to the seed trust pool.
func (e *Engine) AddSeedTrustValidator(who types.AccountID) error {
	if e == nil {
		return errors.New("pot: engine not initialised")
	}
	if who.IsZero() {
		return fmt.Errorf("pot: seed trust validator must not be the zero account")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.seedPool {
		if existing == who {
			return fmt.Errorf("%w: %s", ErrDuplicateSeedTrust, who)
		}
	}
	next := append(types.CloneAccounts(e.seedPool), who)
	if err := e.state.KVPut(seedPoolKey, accountList{Accounts: next}); err != nil {
		return err
	}
	e.seedPool = next
	e.emitter.Emit(events.SeedTrustAdded{Who: who})
	return nil
}

// Elect produces the validator set for era. The seed trust slice is a prefix
// of the pool; the remaining slots go to the highest ranked candidates at or
// above the vote threshold. When the combined set would exceed the configured
// total the run is aborted and nothing is recorded.
func (e *Engine) Elect(era uint32) (Pool, error) {
	if e == nil {
		return Pool{}, errors.New("pot: engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	params := e.params
	seedN := int(params.SeedTrustValidators)
	if seedN > len(e.seedPool) {
		seedN = len(e.seedPool)
	}
	pool := Pool{Era: era, SeedTrust: types.CloneAccounts(e.seedPool[:seedN]), Pot: []types.AccountID{}}

	potN := params.PotSlots()
	if potN > 0 {
		pool.Pot = e.ranker.TopK(int(potN), params.MinVoteThreshold, pool.SeedTrust...)
	}
	pool.PotEnabled = len(pool.Pot) > 0

	if total := len(pool.SeedTrust) + len(pool.Pot); total > int(params.TotalValidators) {
		e.telemetry.ObserveElection("aborted")
		e.logger.Error("election aborted", "era", era, "elected", total, "total", params.TotalValidators)
		return Pool{}, fmt.Errorf("%w: %d > %d", ErrInvariantViolation, total, params.TotalValidators)
	}

	var previous accountList
	hadPrevious, err := e.state.KVGet(lastElectedKey, &previous)
	if err != nil {
		return Pool{}, fmt.Errorf("pot: load last elected: %w", err)
	}
	validators := pool.Validators()
	if err := e.state.KVPut(eraPotKey(era), accountList{Accounts: pool.Pot}); err != nil {
		return Pool{}, err
	}
	if err := e.state.KVPut(lastElectedKey, accountList{Accounts: validators}); err != nil {
		return Pool{}, err
	}

	e.telemetry.ObserveElection("elected")
	e.telemetry.SetElected(len(pool.SeedTrust), len(pool.Pot))
	e.logger.Info("validators elected",
		"era", era,
		"seedTrust", len(pool.SeedTrust),
		"pot", len(pool.Pot),
		"potSlots", potN)

	e.emitter.Emit(events.SeedTrustValidatorsElected{Era: era, Validators: types.CloneAccounts(pool.SeedTrust)})
	if potN > 0 {
		if len(pool.Pot) == 0 {
			e.emitter.Emit(events.EmptyPotValidatorPool{Era: era})
		}
		e.emitter.Emit(events.PotValidatorsElected{Era: era, Validators: types.CloneAccounts(pool.Pot)})
	}
	if hadPrevious && types.AccountsEqual(previous.Accounts, validators) {
		e.emitter.Emit(events.ValidatorsNotChanged{Era: era})
	}
	e.emitter.Emit(events.ValidatorsElected{Era: era, Validators: validators, PotEnabled: pool.PotEnabled})
	return pool, nil
}

// PotValidators returns the PoT slice recorded for era.
func (e *Engine) PotValidators(era uint32) ([]types.AccountID, bool, error) {
	if e == nil {
		return nil, false, errors.New("pot: engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var stored accountList
	ok, err := e.state.KVGet(eraPotKey(era), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return types.CloneAccounts(stored.Accounts), true, nil
}

// LastElected returns the most recently elected validator set.
func (e *Engine) LastElected() ([]types.AccountID, error) {
	if e == nil {
		return nil, errors.New("pot: engine not initialised")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var stored accountList
	if _, err := e.state.KVGet(lastElectedKey, &stored); err != nil {
		return nil, err
	}
	return types.CloneAccounts(stored.Accounts), nil
}
