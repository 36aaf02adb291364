package domain

// Action identifies the kind of push notification.
type Action string

const (
	ActionMessageReceived  Action = "NEW_MESSAGE_RECEIVED"
	ActionMessageSent      Action = "NEW_MESSAGE_SENT"
	ActionMessageDelivered Action = "NEW_MESSAGE_DELIVERED"
	ActionMessageRead      Action = "NEW_MESSAGE_READ"
)

// Payload is the flat data map handed to the push transport.
type Payload map[string]string

// Transport error codes that mark a device token as permanently unusable.
const (
	CodeInvalidRegistrationToken = "messaging/invalid-registration-token"
	CodeTokenNotRegistered       = "messaging/registration-token-not-registered"
)

// DeliveryError is the transport's classification of a failed send.
type DeliveryError struct {
	Code    string
	Message string
}

// DeliveryResult is the per-address outcome of one send. It is never persisted.
type DeliveryResult struct {
	MessageID string
	Error     *DeliveryError
}

// Failed reports whether the transport rejected the address.
func (r DeliveryResult) Failed() bool {
	return r.Error != nil
}
