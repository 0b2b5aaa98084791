package registry

import "github.com/a2aproject/a2a-go/a2a"

// Card is an Agent Card (spec.md §3): the identity document a reachable
// agent publishes into the Registry. It embeds the A2A v0.3 wire shape
// verbatim and adds the one field the A2A shape doesn't carry — an
// internal, opaque registry id distinct from the display Name.
type Card struct {
	a2a.AgentCard

	// ID is opaque and internal to this registry. Per spec.md §3, if ID is
	// left empty at Register time the agent's Name is used in its place.
	ID string `json:"id,omitempty"`
}

// effectiveID returns the id a card is keyed by: ID if set, else Name.
func (c Card) effectiveID() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Name
}

// Query is a Discovery Query (spec.md §3): conjunctive across categories,
// disjunctive within a category. A nil field means "unconstrained".
type Query struct {
	// Capabilities is a set of skill ids that must ALL be present on a
	// candidate card (AND).
	Capabilities []string

	// Tags is a set where ANY match against the union of the card's skill
	// tags suffices (OR).
	Tags []string

	// Transport, if non-empty, must equal the card's preferred transport.
	Transport string

	// Streaming and PushNotifications, if non-nil, must equal the card's
	// corresponding capability flag.
	Streaming         *bool
	PushNotifications *bool
}

func boolPtr(b bool) *bool { return &b }
