package types

import "time"

// PeerID is an opaque handle identifying a remote node, as reported by the
// sentry transport (spec.md §3).
type PeerID string

// PenaltyReason is the taxonomy of peer misbehavior spec.md §4 and §7 call
// out for penalization.
type PenaltyReason string

const (
	PenaltyBadBlock    PenaltyReason = "BadBlock"
	PenaltyBadProtocol PenaltyReason = "BadProtocol"
	PenaltyTooSlow     PenaltyReason = "TooSlow"
)

// PeerInfo tracks the scoring and budget state BlockExchange owns for a
// connected peer (spec.md §3).
type PeerInfo struct {
	ID               PeerID
	Score            int
	PenaltyCount     int
	InFlightRequests int
	Height           BlockNum // peer's advertised head, from the sentry peer-stats stream
	LastSeen         time.Time
}

// RequestKind distinguishes the two outbound request shapes BlockExchange
// issues (spec.md §6).
type RequestKind int

const (
	RequestHeaders RequestKind = iota
	RequestBodies
)

// OutstandingRequest tracks an in-flight GetBlockHeaders/GetBlockBodies
// request (spec.md §3).
type OutstandingRequest struct {
	RequestID      uint64
	Kind           RequestKind
	PeersAttempted []PeerID
	FirstIssuedAt  time.Time
	LastIssuedAt   time.Time

	// TargetOrigin/TargetAmount describe a RequestHeaders target (origin
	// hash + amount); BlockExchange does not set them. TargetHashes is
	// populated for RequestBodies.
	TargetOrigin Hash
	TargetAmount int
	TargetHashes []Hash
}

// Peer returns the most recently attempted peer, or "" if none yet.
func (r *OutstandingRequest) Peer() PeerID {
	if len(r.PeersAttempted) == 0 {
		return ""
	}
	return r.PeersAttempted[len(r.PeersAttempted)-1]
}
