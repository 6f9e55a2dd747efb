package era

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"potchain/core/events"
	"potchain/core/types"
	"potchain/native/pot"
	"potchain/observability/metrics"
)

var (
	stateKey    = []byte("era/state")
	forcingKey  = []byte("era/force")
	startPrefix = []byte("era/start/")
)

// ErrNotStarted is returned by queries issued before the genesis election.
var ErrNotStarted = errors.New("era: no era started")

// Elector runs the validator election for an era.
type Elector interface {
	Elect(era uint32) (pot.Pool, error)
}

type machineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedState struct {
	Started       bool
	Era           uint32
	StartSession  uint32
	ActiveSession uint32
}

type storedForcing struct {
	Mode uint8
}

func startKey(era uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], era)
	return append(append([]byte(nil), startPrefix...), buf[:]...)
}

// Machine tracks session and era counters and decides at each session
// boundary whether a new validator set is elected.
type Machine struct {
	mu          sync.Mutex
	state       machineState
	elector     Elector
	distributor RewardDistributor
	cfg         Config
	current     storedState
	forcing     Forcing
	emitter     events.Emitter
	logger      *slog.Logger
	telemetry   *metrics.PotMetrics
}

// NewMachine restores the counters persisted in state.
func NewMachine(state machineState, elector Elector, distributor RewardDistributor, cfg Config) (*Machine, error) {
	if state == nil {
		return nil, errors.New("era: state not configured")
	}
	if elector == nil {
		return nil, errors.New("era: elector not configured")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if distributor == nil {
		distributor = LogRewardDistributor{}
	}
	m := &Machine{
		state:       state,
		elector:     elector,
		distributor: distributor,
		cfg:         cfg,
		forcing:     cfg.ForceEra,
		emitter:     events.NoopEmitter{},
		logger:      slog.Default().With("component", "era"),
		telemetry:   metrics.Pot(),
	}
	if _, err := state.KVGet(stateKey, &m.current); err != nil {
		return nil, fmt.Errorf("era: load state: %w", err)
	}
	var forcing storedForcing
	ok, err := state.KVGet(forcingKey, &forcing)
	if err != nil {
		return nil, fmt.Errorf("era: load forcing: %w", err)
	}
	if ok {
		m.forcing = Forcing(forcing.Mode)
	}
	if m.current.Started {
		m.telemetry.SetEra(m.current.Era)
	}
	return m, nil
}

// SetEmitter configures the event emitter used for era events.
func (m *Machine) SetEmitter(emitter events.Emitter) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.emitter = emitter
}

// SetLogger replaces the component logger.
func (m *Machine) SetLogger(logger *slog.Logger) {
	if m == nil || logger == nil {
		return
	}
	m.mu.Lock()
	m.logger = logger.With("component", "era")
	m.mu.Unlock()
}

// NewSession handles a session boundary. It returns the newly elected
// validator set and true when the boundary opened a new era. A failed
// election leaves the counters and the forcing mode untouched so the next
// boundary retries.
func (m *Machine) NewSession(session uint32) ([]types.AccountID, bool, error) {
	if m == nil {
		return nil, false, errors.New("era: machine not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current.Started {
		return m.rotate(0, session)
	}
	if !m.shouldElect(session) {
		return nil, false, nil
	}
	validators, elected, err := m.rotate(m.current.Era+1, session)
	if err != nil || !elected {
		return validators, elected, err
	}
	if m.forcing == ForceNew {
		if err := m.storeForcing(NotForcing); err != nil {
			return validators, true, err
		}
	}
	return validators, true, nil
}

func (m *Machine) shouldElect(session uint32) bool {
	switch m.forcing {
	case ForceNone:
		return false
	case ForceAlways, ForceNew:
		return true
	default:
		if session < m.current.StartSession {
			return false
		}
		return session-m.current.StartSession >= m.cfg.SessionsPerEra
	}
}

func (m *Machine) rotate(era, session uint32) ([]types.AccountID, bool, error) {
	pool, err := m.elector.Elect(era)
	if err != nil {
		m.logger.Error("election failed, keeping current validator set", "era", era, "session", session, "error", err)
		return nil, false, fmt.Errorf("era: elect era %d: %w", era, err)
	}
	next := m.current
	next.Started = true
	next.Era = era
	next.StartSession = session
	if err := m.state.KVPut(startKey(era), session); err != nil {
		return nil, false, err
	}
	if err := m.state.KVPut(stateKey, next); err != nil {
		return nil, false, err
	}
	m.current = next
	m.telemetry.SetEra(era)
	m.logger.Info("new era triggered", "era", era, "startSession", session, "validators", len(pool.Validators()))
	m.emitter.Emit(events.NewEraTriggered{Era: era, StartSession: session})
	return pool.Validators(), true, nil
}

// StartSession records the session that became active.
func (m *Machine) StartSession(session uint32) error {
	if m == nil {
		return errors.New("era: machine not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.current
	next.ActiveSession = session
	if err := m.state.KVPut(stateKey, next); err != nil {
		return err
	}
	m.current = next
	return nil
}

// EndSession hands the ended session to the reward distributor.
func (m *Machine) EndSession(ctx context.Context, session uint32) error {
	if m == nil {
		return errors.New("era: machine not initialised")
	}
	m.mu.Lock()
	distributor := m.distributor
	era := m.current.Era
	m.mu.Unlock()

	err := distributor.DistributeReward(ctx, session)
	evt := events.SessionEnded{Session: session, Era: era}
	if err != nil {
		evt.Error = err.Error()
		m.logger.Warn("reward distribution failed", "session", session, "error", err)
	}
	m.mu.Lock()
	m.emitter.Emit(evt)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("era: distribute reward for session %d: %w", session, err)
	}
	return nil
}

// SetForcing replaces the forcing mode.
func (m *Machine) SetForcing(mode Forcing) error {
	if m == nil {
		return errors.New("era: machine not initialised")
	}
	if !mode.Valid() {
		return fmt.Errorf("era: unknown forcing mode %d", uint8(mode))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeForcing(mode)
}

func (m *Machine) storeForcing(mode Forcing) error {
	if err := m.state.KVPut(forcingKey, storedForcing{Mode: uint8(mode)}); err != nil {
		return err
	}
	m.forcing = mode
	m.emitter.Emit(events.ForceEra{Mode: mode.String()})
	return nil
}

// Forcing returns the active forcing mode.
func (m *Machine) Forcing() Forcing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forcing
}

// CurrentEra returns the active era index and its start session.
func (m *Machine) CurrentEra() (era uint32, start uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current.Started {
		return 0, 0, ErrNotStarted
	}
	return m.current.Era, m.current.StartSession, nil
}

// Started reports whether the genesis election has run.
func (m *Machine) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Started
}

// ActiveSession returns the session recorded by the last StartSession call.
func (m *Machine) ActiveSession() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.ActiveSession
}

// EraStartSession returns the session at which era began.
func (m *Machine) EraStartSession(era uint32) (uint32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var session uint32
	ok, err := m.state.KVGet(startKey(era), &session)
	return session, ok, err
}
