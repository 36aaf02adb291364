package domain

// Message is a chat message as it appears on the messages change feed.
// TimeStamp is carried exactly as the client stored it.
type Message struct {
	ConversationID string
	MessageID      string
	Sender         string
	Receiver       string
	TimeStamp      string
}

// MessageReceipt is written by the reading client and consumed here.
type MessageReceipt struct {
	ConversationID string
	MessageID      string
	Sender         string
	Timestamp      string
}
