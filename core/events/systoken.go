package events

import (
	"strconv"
	"strings"

	"potchain/core/types"
)

const (
	TypeTokenRegistered  = "systoken.registered"
	TypeTokenRemoved     = "systoken.removed"
	TypeTokenConverted   = "systoken.converted"
	TypeTokenRateChanged = "systoken.rate_changed"
)

// TokenRegistered records a new system token and its local links.
type TokenRegistered struct {
	Token types.SystemTokenID
	Rate  uint64
	Links []types.LocalLink
}

// EventType implements the Event interface.
func (TokenRegistered) EventType() string { return TypeTokenRegistered }

// Event converts the struct into a types.Event payload.
func (e TokenRegistered) Event() *types.Event {
	return &types.Event{Type: TypeTokenRegistered, Attributes: map[string]string{
		"token": e.Token.String(),
		"rate":  strconv.FormatUint(e.Rate, 10),
		"links": joinLinks(e.Links),
	}}
}

// TokenRemoved records that a system token and its links were dropped.
type TokenRemoved struct {
	Token types.SystemTokenID
	Links []types.LocalLink
}

// EventType implements the Event interface.
func (TokenRemoved) EventType() string { return TypeTokenRemoved }

// Event converts the struct into a types.Event payload.
func (e TokenRemoved) Event() *types.Event {
	return &types.Event{Type: TypeTokenRemoved, Attributes: map[string]string{
		"token": e.Token.String(),
		"links": joinLinks(e.Links),
	}}
}

// TokenConverted records a local asset resolved to its system token.
type TokenConverted struct {
	Link  types.LocalLink
	Token types.SystemTokenID
}

// EventType implements the Event interface.
func (TokenConverted) EventType() string { return TypeTokenConverted }

// Event converts the struct into a types.Event payload.
func (e TokenConverted) Event() *types.Event {
	return &types.Event{Type: TypeTokenConverted, Attributes: map[string]string{
		"link":  e.Link.String(),
		"token": e.Token.String(),
	}}
}

// TokenRateChanged records an exchange rate update.
type TokenRateChanged struct {
	Token types.SystemTokenID
	Old   uint64
	New   uint64
}

// EventType implements the Event interface.
func (TokenRateChanged) EventType() string { return TypeTokenRateChanged }

// Event converts the struct into a types.Event payload.
func (e TokenRateChanged) Event() *types.Event {
	attrs := oldNew(e.Old, e.New)
	attrs["token"] = e.Token.String()
	return &types.Event{Type: TypeTokenRateChanged, Attributes: attrs}
}

func joinLinks(links []types.LocalLink) string {
	encoded := make([]string, len(links))
	for i := range links {
		encoded[i] = links[i].String()
	}
	return strings.Join(encoded, ",")
}
