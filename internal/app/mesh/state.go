package mesh

// State is the negotiation state of one peer link.
type State int

const (
	Idle State = iota
	Offering
	AwaitingAnswer
	AnsweringOffer
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Offering:
		return "offering"
	case AwaitingAnswer:
		return "awaiting-answer"
	case AnsweringOffer:
		return "answering-offer"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// stable reports whether an inbound offer can renegotiate on the existing
// link instead of replacing it.
func (s State) stable() bool {
	return s == Connected
}
