package events

import "rentescrow/core/types"

// TypeCommitted marks events that were published after their transaction was
// committed.
const TypeCommitted = "ledger.committed"

// Committed wraps an event with the position of the transaction that produced
// it.
type Committed struct {
	Height uint64
	TxHash []byte
	Index  int
	Inner  types.Event
}

func (Committed) EventType() string { return TypeCommitted }

// Event returns the wrapped payload.
func (c Committed) Event() *types.Event {
	attrs := make(map[string]string, len(c.Inner.Attributes))
	for k, v := range c.Inner.Attributes {
		attrs[k] = v
	}
	return &types.Event{Type: c.Inner.Type, Attributes: attrs}
}
