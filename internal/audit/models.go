// Package audit captures security-relevant actions as append-only events.
// Services emit events best-effort; a lost audit event never fails the
// operation that produced it.
package audit

import "time"

// Action names the operation an event records.
type Action string

const (
	ActionDIDCreated         Action = "did.created"
	ActionDIDUpdated         Action = "did.updated"
	ActionBiometricEnrolled  Action = "biometric.enrolled"
	ActionBiometricVerified  Action = "biometric.verified"
	ActionFraudEventRecorded Action = "fraud.recorded"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	DID       string    `json:"did,omitempty"`
	Action    Action    `json:"action"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}
