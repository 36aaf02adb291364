package usecase

import "chat-notifier/internal/domain"

// PayloadFields holds every value any notification may carry. BuildPayload
// picks the subset that belongs to the action.
type PayloadFields struct {
	Sender            string
	Receiver          string
	ConversationID    string
	MessageID         string
	MessageTimestamp  string
	DeliveryTimestamp string
	ReadTimestamp     string
}

const (
	keyAction            = "action"
	keySender            = "sender"
	keyReceiver          = "receiver"
	keyConversationID    = "conversation_id"
	keyMessageID         = "message_id"
	keyMessageTimestamp  = "message_timestamp"
	keyDeliveryTimestamp = "delivery_timestamp"
	keyReadTimestamp     = "read_timestamp"
)

// BuildPayload maps an action and its fields to the flat data payload.
// Field values are not validated.
func BuildPayload(action domain.Action, f PayloadFields) domain.Payload {
	p := domain.Payload{keyAction: string(action)}
	switch action {
	case domain.ActionMessageReceived:
		p[keySender] = f.Sender
		p[keyConversationID] = f.ConversationID
		p[keyMessageID] = f.MessageID
		p[keyMessageTimestamp] = f.MessageTimestamp
	case domain.ActionMessageSent:
		p[keyReceiver] = f.Receiver
		p[keyConversationID] = f.ConversationID
		p[keyMessageID] = f.MessageID
	case domain.ActionMessageDelivered:
		p[keyReceiver] = f.Receiver
		p[keyConversationID] = f.ConversationID
		p[keyMessageID] = f.MessageID
		p[keyDeliveryTimestamp] = f.DeliveryTimestamp
	case domain.ActionMessageRead:
		p[keyConversationID] = f.ConversationID
		p[keyMessageID] = f.MessageID
		p[keyReadTimestamp] = f.ReadTimestamp
	}
	return p
}

