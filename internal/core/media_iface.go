package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the client side of one peer link.
type PeerConnection interface {
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	// AcceptOffer sets the remote offer, then creates and sets the local answer.
	AcceptOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyAnswer sets the remote answer for a previously created offer.
	ApplyAnswer(answer webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	ConnectionState() webrtc.PeerConnectionState
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// Close should stop all underlying media resources.
	Close() error
}

// PeerFactory creates a PeerConnection towards a remote participant.
type PeerFactory interface {
	NewPeer(remote domain.UserID) (PeerConnection, error)
}

// LocalMedia is the local capture shared by every peer link of a call.
type LocalMedia interface {
	Kind() domain.CallKind
	// SetEnabled reports false when the media has no track of that kind.
	SetEnabled(kind webrtc.RTPCodecType, enabled bool) bool
	Enabled(kind webrtc.RTPCodecType) bool
	Close() error
}
