package systoken

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
	ErrAlreadyRegistered = errors.New("systoken: already registered")
	ErrNotRegistered     = errors.New("systoken: not registered")
	ErrCapacityExceeded  = errors.New("systoken: link capacity exceeded")
	ErrInvalidRate       = errors.New("systoken: exchange rate must be positive")
	ErrInvalidMetadata   = errors.New("systoken: invalid metadata")
)

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVKeys(prefix []byte) ([][]byte, error)
}

// Token is the persisted record of a registered system token.
type Token struct {
	ID       types.SystemTokenID `json:"id"`
	Rate     uint64              `json:"rate"`
	Links    []types.LocalLink   `json:"links"`
	Metadata Metadata            `json:"metadata"`
}

type linkRecord struct {
	Token types.SystemTokenID
}

// paraIndex lists the local assets of one chain that are linked to a system
// token, in registration order.
type paraIndex struct {
	Assets []uint32
}

// Registry maps chain-local assets to canonical system tokens and keeps the
// exchange rate used to normalise vote weight paid in each token.
type Registry struct {
	mu      sync.RWMutex
	state   registryState
	limits  Limits
	emitter events.Emitter
	logger  *slog.Logger
}

// NewRegistry constructs a registry backed by the provided state accessor.
func NewRegistry(state registryState, limits Limits) *Registry {
	return &Registry{
		state:   state,
		limits:  limits,
		emitter: events.NoopEmitter{},
		logger:  slog.Default().With("component", "systoken"),
	}
}

// SetEmitter configures the event emitter used for registry events.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

// SetLogger replaces the component logger.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if r == nil || logger == nil {
		return
	}
	r.mu.Lock()
	r.logger = logger.With("component", "systoken")
	r.mu.Unlock()
}

func (r *Registry) ready() error {
	if r == nil || r.state == nil {
		return errors.New("systoken: registry not initialised")
	}
	return nil
}

// Register stores a new system token with its local links and exchange rate.
// Every check runs before the first write so a rejected registration leaves
// the registry untouched.
func (r *Registry) Register(id types.SystemTokenID, links []types.LocalLink, rate uint64, meta Metadata) error {
	if err := r.ready(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rate == 0 {
		return ErrInvalidRate
	}
	meta, err := meta.normalized()
	if err != nil {
		return err
	}
	if uint32(len(links)) > r.limits.MaxLinksPerToken {
		return fmt.Errorf("%w: %d links for token %s (max %d)", ErrCapacityExceeded, len(links), id, r.limits.MaxLinksPerToken)
	}
	exists, err := r.state.KVGet(tokenKey(id), nil)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: token %s", ErrAlreadyRegistered, id)
	}

	seen := make(map[types.LocalLink]struct{}, len(links))
	perPara := make(map[uint32][]uint32)
	paraOrder := make([]uint32, 0)
	for _, link := range links {
		if _, dup := seen[link]; dup {
			return fmt.Errorf("%w: link %s supplied twice", ErrAlreadyRegistered, link)
		}
		seen[link] = struct{}{}
		taken, err := r.state.KVGet(linkKey(link), nil)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: link %s", ErrAlreadyRegistered, link)
		}
		if _, ok := perPara[link.ParaID]; !ok {
			paraOrder = append(paraOrder, link.ParaID)
		}
		perPara[link.ParaID] = append(perPara[link.ParaID], link.LocalAssetID)
	}

	indexes := make(map[uint32]paraIndex, len(perPara))
	for _, paraID := range paraOrder {
		index, err := r.loadParaIndex(paraID)
		if err != nil {
			return err
		}
		if uint32(len(index.Assets)+len(perPara[paraID])) > r.limits.MaxLinksPerPara {
			return fmt.Errorf("%w: para %d holds %d links (max %d)", ErrCapacityExceeded, paraID, len(index.Assets), r.limits.MaxLinksPerPara)
		}
		index.Assets = append(index.Assets, perPara[paraID]...)
		indexes[paraID] = index
	}

	record := Token{ID: id, Rate: rate, Links: cloneLinks(links), Metadata: meta}
	if err := r.state.KVPut(tokenKey(id), record); err != nil {
		return err
	}
	for _, link := range links {
		if err := r.state.KVPut(linkKey(link), linkRecord{Token: id}); err != nil {
			return err
		}
	}
	for _, paraID := range paraOrder {
		if err := r.state.KVPut(paraKey(paraID), indexes[paraID]); err != nil {
			return err
		}
	}

	r.refreshGauge()
	r.logger.Info("system token registered", "token", id.String(), "rate", rate, "links", len(links))
	r.emitter.Emit(events.TokenRegistered{Token: id, Rate: rate, Links: cloneLinks(links)})
	return nil
}

// Registration is one token awaiting Register.
type Registration struct {
	ID       types.SystemTokenID
	Links    []types.LocalLink
	Rate     uint64
	Metadata Metadata
}

// CheckRegistrations returns the error Register would report if the batch
// were registered in order, or nil when every registration would succeed.
// Nothing is written.
func (r *Registry) CheckRegistrations(batch []Registration) error {
	if err := r.ready(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make(map[types.SystemTokenID]struct{}, len(batch))
	claimed := make(map[types.LocalLink]types.SystemTokenID)
	perPara := make(map[uint32]int)
	paraOrder := make([]uint32, 0)
	for _, reg := range batch {
		if reg.Rate == 0 {
			return fmt.Errorf("token %s: %w", reg.ID, ErrInvalidRate)
		}
		if _, err := reg.Metadata.normalized(); err != nil {
			return fmt.Errorf("token %s: %w", reg.ID, err)
		}
		if uint32(len(reg.Links)) > r.limits.MaxLinksPerToken {
			return fmt.Errorf("%w: %d links for token %s (max %d)", ErrCapacityExceeded, len(reg.Links), reg.ID, r.limits.MaxLinksPerToken)
		}
		if _, dup := ids[reg.ID]; dup {
			return fmt.Errorf("%w: token %s supplied twice", ErrAlreadyRegistered, reg.ID)
		}
		ids[reg.ID] = struct{}{}
		exists, err := r.state.KVGet(tokenKey(reg.ID), nil)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: token %s", ErrAlreadyRegistered, reg.ID)
		}
		for _, link := range reg.Links {
			if owner, dup := claimed[link]; dup {
				return fmt.Errorf("%w: link %s claimed by %s and %s", ErrAlreadyRegistered, link, owner, reg.ID)
			}
			claimed[link] = reg.ID
			taken, err := r.state.KVGet(linkKey(link), nil)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: link %s", ErrAlreadyRegistered, link)
			}
			if _, ok := perPara[link.ParaID]; !ok {
				paraOrder = append(paraOrder, link.ParaID)
			}
			perPara[link.ParaID]++
		}
	}
	for _, paraID := range paraOrder {
		index, err := r.loadParaIndex(paraID)
		if err != nil {
			return err
		}
		if uint32(len(index.Assets)+perPara[paraID]) > r.limits.MaxLinksPerPara {
			return fmt.Errorf("%w: para %d holds %d links (max %d)", ErrCapacityExceeded, paraID, len(index.Assets), r.limits.MaxLinksPerPara)
		}
	}
	return nil
}

// Remove drops the token together with its rate, metadata and every reverse
// link.
func (r *Registry) Remove(id types.SystemTokenID) error {
	if err := r.ready(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok, err := r.load(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: token %s", ErrNotRegistered, id)
	}

	removed := make(map[uint32]map[uint32]struct{})
	paraOrder := make([]uint32, 0)
	for _, link := range record.Links {
		if _, ok := removed[link.ParaID]; !ok {
			removed[link.ParaID] = make(map[uint32]struct{})
			paraOrder = append(paraOrder, link.ParaID)
		}
		removed[link.ParaID][link.LocalAssetID] = struct{}{}
	}
	indexes := make(map[uint32]paraIndex, len(paraOrder))
	for _, paraID := range paraOrder {
		index, err := r.loadParaIndex(paraID)
		if err != nil {
			return err
		}
		kept := index.Assets[:0]
		for _, asset := range index.Assets {
			if _, drop := removed[paraID][asset]; !drop {
				kept = append(kept, asset)
			}
		}
		indexes[paraID] = paraIndex{Assets: kept}
	}

	for _, link := range record.Links {
		if err := r.state.KVDelete(linkKey(link)); err != nil {
			return err
		}
	}
	for _, paraID := range paraOrder {
		index := indexes[paraID]
		if len(index.Assets) == 0 {
			if err := r.state.KVDelete(paraKey(paraID)); err != nil {
				return err
			}
			continue
		}
		if err := r.state.KVPut(paraKey(paraID), index); err != nil {
			return err
		}
	}
	if err := r.state.KVDelete(tokenKey(id)); err != nil {
		return err
	}

	r.refreshGauge()
	r.logger.Info("system token removed", "token", id.String())
	r.emitter.Emit(events.TokenRemoved{Token: id, Links: record.Links})
	return nil
}

// SetRate updates the exchange rate of a registered token.
func (r *Registry) SetRate(id types.SystemTokenID, rate uint64) error {
	if err := r.ready(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rate == 0 {
		return ErrInvalidRate
	}
	record, ok, err := r.load(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: token %s", ErrNotRegistered, id)
	}
	old := record.Rate
	record.Rate = rate
	if err := r.state.KVPut(tokenKey(id), record); err != nil {
		return err
	}
	r.emitter.Emit(events.TokenRateChanged{Token: id, Old: old, New: rate})
	return nil
}

// ResolveLocal maps a chain-local asset to its system token.
func (r *Registry) ResolveLocal(paraID, localAssetID uint32) (types.SystemTokenID, bool, error) {
	if err := r.ready(); err != nil {
		return types.SystemTokenID{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	link := types.LocalLink{ParaID: paraID, LocalAssetID: localAssetID}
	var stored linkRecord
	ok, err := r.state.KVGet(linkKey(link), &stored)
	if err != nil || !ok {
		return types.SystemTokenID{}, false, err
	}
	r.emitter.Emit(events.TokenConverted{Link: link, Token: stored.Token})
	return stored.Token, true, nil
}

// AdjustWeight scales raw by the token's exchange rate. Unregistered tokens
// pass the weight through unchanged.
func (r *Registry) AdjustWeight(id types.SystemTokenID, raw types.VoteWeight) (types.VoteWeight, error) {
	if err := r.ready(); err != nil {
		return raw, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok, err := r.load(id)
	if err != nil {
		return raw, err
	}
	if !ok {
		return raw, nil
	}
	return raw.SaturatingMulUint64(record.Rate), nil
}

// IsRegistered reports whether the token exists.
func (r *Registry) IsRegistered(id types.SystemTokenID) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.KVGet(tokenKey(id), nil)
}

// Token returns the stored record for id.
func (r *Registry) Token(id types.SystemTokenID) (*Token, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok, err := r.load(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &record, true, nil
}

// Tokens lists every registered token ordered by identifier.
func (r *Registry) Tokens() ([]Token, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys, err := r.state.KVKeys(tokenPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Token, 0, len(keys))
	for _, key := range keys {
		var record Token
		ok, err := r.state.KVGet(key, &record)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, record)
		}
	}
	return out, nil
}

// ParaLinks lists the local assets of paraID linked to system tokens.
func (r *Registry) ParaLinks(paraID uint32) ([]uint32, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	index, err := r.loadParaIndex(paraID)
	if err != nil {
		return nil, err
	}
	return index.Assets, nil
}

func (r *Registry) load(id types.SystemTokenID) (Token, bool, error) {
	var record Token
	ok, err := r.state.KVGet(tokenKey(id), &record)
	if err != nil {
		return Token{}, false, fmt.Errorf("systoken: load %s: %w", id, err)
	}
	return record, ok, nil
}

func (r *Registry) loadParaIndex(paraID uint32) (paraIndex, error) {
	var index paraIndex
	if _, err := r.state.KVGet(paraKey(paraID), &index); err != nil {
		return paraIndex{}, fmt.Errorf("systoken: load para %d: %w", paraID, err)
	}
	return index, nil
}

func (r *Registry) refreshGauge() {
	keys, err := r.state.KVKeys(tokenPrefix)
	if err != nil {
		r.logger.Warn("count system tokens", "error", err)
		return
	}
	metrics.Pot().SetRegisteredTokens(len(keys))
}

func cloneLinks(links []types.LocalLink) []types.LocalLink {
	if len(links) == 0 {
		return nil
	}
	return append([]types.LocalLink(nil), links...)
}
