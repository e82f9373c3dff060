package event

// Call event types - client to server
const (
	// EventCallInitiate - caller starts a call, carrying the opaque offer
	EventCallInitiate = "call-initiate"

	// EventCallAnswer - receiver answers, carrying the opaque answer
	EventCallAnswer = "call-answer"

	// EventCallDecline - receiver declines before answering
	EventCallDecline = "call-decline"

	// EventCallEnd - either party hangs up
	EventCallEnd = "call-end"

	// EventCallSignal - opaque negotiation data (ICE candidate equivalents)
	EventCallSignal = "ice-candidate"

	// EventCallConnectivity - connectivity observation from a participant
	EventCallConnectivity = "call-connectivity"
)

// Call event types - server to client
const (
	// EventCallIncoming - notify receiver of an incoming call with the offer
	EventCallIncoming = "incoming-call"

	// EventCallInitiated - acknowledge caller with the assigned call id
	EventCallInitiated = "call-initiated"

	// EventCallAnswered - notify caller that receiver answered
	EventCallAnswered = "call-answered"

	// EventCallDeclined - notify caller that receiver declined
	EventCallDeclined = "call-declined"

	// EventCallEnded - notify the other party that the call ended
	EventCallEnded = "call-ended"

	// EventCallFailed - notify of call-related failures
	EventCallFailed = "call-failed"
)

// Call types
const (
	CallTypeVoice = "voice"
	CallTypeVideo = "video"
)

// Call session states
const (
	CallStateRinging      = "ringing"
	CallStateAnswered     = "answered"
	CallStateConnected    = "connected"
	CallStateReconnecting = "reconnecting"
	CallStateEnded        = "ended"
	CallStateFailed       = "failed"
)

// Call end reasons
const (
	CallEndReasonNormal       = "normal"
	CallEndReasonDeclined     = "declined"
	CallEndReasonBusy         = "busy"
	CallEndReasonDisconnected = "peer disconnected"
	CallEndReasonFailure      = "negotiation failure"
)
