package types

// Event is the wire form of a ledger state change: a type tag plus flat
// string attributes, ready for log emission or an indexer feed. The typed
// structs in core/events render into this shape.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
