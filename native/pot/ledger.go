package pot

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"potchain/core/events"
	"potchain/core/types"
	"potchain/observability/metrics"
)

// ErrStaleVote is returned when a vote would create a new ledger entry while
// the ledger already holds the maximum number of entries.
var ErrStaleVote = errors.New("pot: vote ledger full")

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVKeys(prefix []byte) ([][]byte, error)
}

// Entry is one (token, candidate) weight record. Seq is the insertion order.
type Entry struct {
	Seq       uint64              `json:"seq"`
	Token     types.SystemTokenID `json:"token"`
	Candidate types.AccountID     `json:"candidate"`
	Weight    types.VoteWeight    `json:"weight"`
}

type entryKey struct {
	token     types.SystemTokenID
	candidate types.AccountID
}

type ledgerSeq struct {
	Next uint64
}

// Ledger accumulates vote weight per (system token, candidate). Entries are
// kept in insertion order so rankings break ties by first vote.
type Ledger struct {
	mu         sync.RWMutex
	state      ledgerState
	maxVoteNum uint32
	entries    []Entry
	index      map[entryKey]int
	nextSeq    uint64
	emitter    events.Emitter
	logger     *slog.Logger
	telemetry  *metrics.PotMetrics
}

// NewLedger loads the persisted entries from state.
func NewLedger(state ledgerState, maxVoteNum uint32) (*Ledger, error) {
	if state == nil {
		return nil, errors.New("pot: ledger state not configured")
	}
	if maxVoteNum == 0 {
		return nil, fmt.Errorf("pot: max vote num must be positive")
	}
	l := &Ledger{
		state:      state,
		maxVoteNum: maxVoteNum,
		index:      make(map[entryKey]int),
		emitter:    events.NoopEmitter{},
		logger:     slog.Default().With("component", "pot.ledger"),
		telemetry:  metrics.Pot(),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	var seq ledgerSeq
	if _, err := l.state.KVGet(ledgerSeqKey, &seq); err != nil {
		return fmt.Errorf("pot: load ledger sequence: %w", err)
	}
	keys, err := l.state.KVKeys(ledgerEntryPrefix)
	if err != nil {
		return fmt.Errorf("pot: list ledger entries: %w", err)
	}
	for _, key := range keys {
		var entry Entry
		ok, err := l.state.KVGet(key, &entry)
		if err != nil {
			return fmt.Errorf("pot: load ledger entry: %w", err)
		}
		if !ok {
			continue
		}
		l.index[entryKey{entry.Token, entry.Candidate}] = len(l.entries)
		l.entries = append(l.entries, entry)
		if entry.Seq >= seq.Next {
			seq.Next = entry.Seq + 1
		}
	}
	l.nextSeq = seq.Next
	l.telemetry.SetLedgerEntries(len(l.entries))
	return nil
}

// SetEmitter configures the event emitter used for vote events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetLogger replaces the component logger.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if l == nil || logger == nil {
		return
	}
	l.mu.Lock()
	l.logger = logger.With("component", "pot.ledger")
	l.mu.Unlock()
}

// Accumulate credits delta to the (token, candidate) entry. Updates of an
// existing entry always succeed. A new entry is only created while the ledger
// holds fewer than MaxVoteNum entries; otherwise ErrStaleVote is returned and
// nothing changes.
func (l *Ledger) Accumulate(token types.SystemTokenID, candidate types.AccountID, delta types.VoteWeight) error {
	if l == nil || l.state == nil {
		return errors.New("pot: ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := entryKey{token, candidate}
	if idx, ok := l.index[key]; ok {
		updated := l.entries[idx]
		updated.Weight = updated.Weight.SaturatingAdd(delta)
		if err := l.state.KVPut(ledgerEntryKey(updated.Seq), updated); err != nil {
			return err
		}
		l.entries[idx] = updated
		l.afterVote(updated, delta)
		return nil
	}

	if uint32(len(l.entries)) >= l.maxVoteNum {
		l.telemetry.ObserveStaleVote()
		return fmt.Errorf("%w: %d entries", ErrStaleVote, len(l.entries))
	}
	entry := Entry{Seq: l.nextSeq, Token: token, Candidate: candidate, Weight: delta}
	if err := l.state.KVPut(ledgerEntryKey(entry.Seq), entry); err != nil {
		return err
	}
	if err := l.state.KVPut(ledgerSeqKey, ledgerSeq{Next: entry.Seq + 1}); err != nil {
		return err
	}
	l.nextSeq = entry.Seq + 1
	l.index[key] = len(l.entries)
	l.entries = append(l.entries, entry)
	l.telemetry.SetLedgerEntries(len(l.entries))
	l.afterVote(entry, delta)
	return nil
}

// CheckAccumulate returns ErrStaleVote when accumulating votes in order would
// overflow the ledger. Only the Token and Candidate fields are read. Nothing
// is written.
func (l *Ledger) CheckAccumulate(votes []Entry) error {
	if l == nil || l.state == nil {
		return errors.New("pot: ledger not initialised")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	fresh := make(map[entryKey]struct{})
	for _, vote := range votes {
		key := entryKey{vote.Token, vote.Candidate}
		if _, ok := l.index[key]; ok {
			continue
		}
		fresh[key] = struct{}{}
	}
	if uint32(len(l.entries)+len(fresh)) > l.maxVoteNum {
		return fmt.Errorf("%w: %d entries plus %d new (max %d)", ErrStaleVote, len(l.entries), len(fresh), l.maxVoteNum)
	}
	return nil
}

func (l *Ledger) afterVote(entry Entry, delta types.VoteWeight) {
	l.telemetry.ObserveVote(entry.Token.String())
	l.emitter.Emit(events.VotePointsAdded{
		Token:     entry.Token,
		Candidate: entry.Candidate,
		Points:    delta,
		Total:     entry.Weight,
	})
}

// TopK ranks entries by weight, highest first, with ties kept in insertion
// order. Entries below minThreshold and candidates in exclude are dropped
// before the list is cut to k. A candidate voted for under several tokens
// appears once, at its best rank.
func (l *Ledger) TopK(k int, minThreshold types.VoteWeight, exclude ...types.AccountID) []types.AccountID {
	if l == nil || k <= 0 {
		return []types.AccountID{}
	}
	l.mu.RLock()
	ranked := append([]Entry(nil), l.entries...)
	l.mu.RUnlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Weight.Cmp(ranked[j].Weight) > 0
	})
	out := make([]types.AccountID, 0, k)
	seen := make(map[types.AccountID]struct{}, k+len(exclude))
	for _, who := range exclude {
		seen[who] = struct{}{}
	}
	for _, entry := range ranked {
		if len(out) == k {
			break
		}
		if entry.Weight.Cmp(minThreshold) < 0 {
			// Sorted descending, nothing after this qualifies.
			break
		}
		if _, dup := seen[entry.Candidate]; dup {
			continue
		}
		seen[entry.Candidate] = struct{}{}
		out = append(out, entry.Candidate)
	}
	return out
}

// Reset clears every entry and returns how many were removed.
func (l *Ledger) Reset() (int, error) {
	if l == nil || l.state == nil {
		return 0, errors.New("pot: ledger not initialised")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if err := l.state.KVDelete(ledgerEntryKey(entry.Seq)); err != nil {
			return 0, err
		}
	}
	if err := l.state.KVDelete(ledgerSeqKey); err != nil {
		return 0, err
	}
	cleared := len(l.entries)
	l.entries = nil
	l.index = make(map[entryKey]int)
	l.nextSeq = 0
	l.telemetry.SetLedgerEntries(0)
	l.logger.Info("vote ledger reset", "entries", cleared)
	return cleared, nil
}

// Weight returns the accumulated weight of (token, candidate).
func (l *Ledger) Weight(token types.SystemTokenID, candidate types.AccountID) (types.VoteWeight, bool) {
	if l == nil {
		return types.VoteWeight{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.index[entryKey{token, candidate}]
	if !ok {
		return types.VoteWeight{}, false
	}
	return l.entries[idx].Weight, true
}

// Count reports the number of distinct entries.
func (l *Ledger) Count() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// MaxVoteNum reports the entry cap.
func (l *Ledger) MaxVoteNum() uint32 {
	if l == nil {
		return 0
	}
	return l.maxVoteNum
}

// Entries returns a copy of the ledger in insertion order.
func (l *Ledger) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}
