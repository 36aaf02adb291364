// Package stream turns DynamoDB stream images into domain records.
package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"chat-notifier/internal/domain"
)

type image = map[string]events.DynamoDBAttributeValue

// DecodeMessage builds a Message from a messages-table record. Keys are
// authoritative for ids; the image supplies everything else. Only the
// fields needed to route the event are required.
func DecodeMessage(keys, img image) (domain.Message, error) {
	if len(img) == 0 {
		return domain.Message{}, errors.New("stream: message image is empty")
	}
	convID, msgID, err := decodeKeys(keys, img)
	if err != nil {
		return domain.Message{}, fmt.Errorf("stream: message keys: %w", err)
	}
	sender, err := str(img, "sender")
	if err != nil {
		return domain.Message{}, fmt.Errorf("stream: message: %w", err)
	}
	receiver, err := str(img, "receiver")
	if err != nil {
		return domain.Message{}, fmt.Errorf("stream: message: %w", err)
	}
	return domain.Message{
		ConversationID: convID,
		MessageID:      msgID,
		Sender:         sender,
		Receiver:       receiver,
		TimeStamp:      scalar(img, "time_stamp"),
	}, nil
}

// DecodeReceipt builds a MessageReceipt from a receipts-table record.
func DecodeReceipt(keys, img image) (domain.MessageReceipt, error) {
	if len(img) == 0 {
		return domain.MessageReceipt{}, errors.New("stream: receipt image is empty")
	}
	convID, msgID, err := decodeKeys(keys, img)
	if err != nil {
		return domain.MessageReceipt{}, fmt.Errorf("stream: receipt keys: %w", err)
	}
	sender, err := str(img, "sender")
	if err != nil {
		return domain.MessageReceipt{}, fmt.Errorf("stream: receipt: %w", err)
	}
	return domain.MessageReceipt{
		ConversationID: convID,
		MessageID:      msgID,
		Sender:         sender,
		Timestamp:      scalar(img, "timestamp"),
	}, nil
}

// TableName extracts the table from a stream ARN of the form
// arn:aws:dynamodb:<region>:<account>:table/<name>/stream/<label>.
func TableName(eventSourceARN string) string {
	_, rest, ok := strings.Cut(eventSourceARN, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

func decodeKeys(keys, img image) (conversationID, messageID string, err error) {
	conversationID, err = firstStr("conversation_id", keys, img)
	if err != nil {
		return "", "", err
	}
	messageID, err = firstStr("message_id", keys, img)
	if err != nil {
		return "", "", err
	}
	return conversationID, messageID, nil
}

func firstStr(key string, sources ...image) (string, error) {
	var lastErr error
	for _, src := range sources {
		v, err := str(src, key)
		if err == nil && v != "" {
			return v, nil
		}
		if err == nil {
			err = fmt.Errorf("attribute %q is empty", key)
		}
		lastErr = err
	}
	return "", lastErr
}

func str(img image, key string) (string, error) {
	v, ok := img[key]
	if !ok || v.IsNull() {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	if v.DataType() != events.DataTypeString {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return v.String(), nil
}

// scalar renders a number or string attribute as stored, since clients have
// written timestamps both ways. Booleans render as true or false; anything
// else, missing or null comes back empty.
func scalar(img image, key string) string {
	v, ok := img[key]
	if !ok || v.IsNull() {
		return ""
	}
	switch v.DataType() {
	case events.DataTypeNumber:
		return v.Number()
	case events.DataTypeString:
		return v.String()
	case events.DataTypeBoolean:
		return strconv.FormatBool(v.Boolean())
	}
	return ""
}
