package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-notifier/internal/domain"
)

const (
	attrUID            = "uid"
	attrPhoneNumber    = "phone_number"
	attrDeviceToken    = "device_instance_id"
	attrConversationID = "conversation_id"
	attrMessageID      = "message_id"

	// legacyNullToken is what older clients wrote instead of removing the attribute.
	legacyNullToken = "null"

	// Two items are enough to tell a unique match from an ambiguous one.
	phoneLookupLimit = 2
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Tables names the DynamoDB tables and index the Client works against.
type Tables struct {
	Users      string
	PhoneIndex string
	Receipts   string
}

// Client wraps the users and receipts tables.
type Client struct {
	api    dynamodbAPI
	tables Tables
}

// New creates a new repository Client.
func New(api dynamodbAPI, tables Tables) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tables.Users) == "" {
		return nil, errors.New("repository: users table name must not be empty")
	}
	if strings.TrimSpace(tables.PhoneIndex) == "" {
		return nil, errors.New("repository: phone index name must not be empty")
	}
	if strings.TrimSpace(tables.Receipts) == "" {
		return nil, errors.New("repository: receipts table name must not be empty")
	}
	return &Client{api: api, tables: tables}, nil
}

// FindUsersByPhoneNumber returns at most two users whose phone_number equals
// phoneNumber. Callers decide what more than one match means.
func (c *Client) FindUsersByPhoneNumber(ctx context.Context, phoneNumber string) ([]domain.UserRecord, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tables.Users),
		IndexName:              aws.String(c.tables.PhoneIndex),
		KeyConditionExpression: aws.String("#phone = :phone"),
		ExpressionAttributeNames: map[string]string{
			"#phone": attrPhoneNumber,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":phone": &types.AttributeValueMemberS{Value: phoneNumber},
		},
		Limit: aws.Int32(phoneLookupLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: FindUsersByPhoneNumber query: %w", err)
	}
	if out == nil {
		return nil, nil
	}

	users := make([]domain.UserRecord, 0, len(out.Items))
	for _, item := range out.Items {
		u, err := itemToUser(item)
		if err != nil {
			return nil, fmt.Errorf("repository: FindUsersByPhoneNumber unmarshal: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

// ClearDeviceToken removes the device token from the user identified by uid,
// but only while the stored token still equals staleToken. It reports whether
// the attribute was removed; false with a nil error means the token had
// already been cleared or replaced.
func (c *Client) ClearDeviceToken(ctx context.Context, uid, staleToken string) (bool, error) {
	if strings.TrimSpace(uid) == "" {
		return false, errors.New("repository: ClearDeviceToken: uid is required")
	}

	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tables.Users),
		Key: map[string]types.AttributeValue{
			attrUID: &types.AttributeValueMemberS{Value: uid},
		},
		UpdateExpression:    aws.String("REMOVE #token"),
		ConditionExpression: aws.String("attribute_exists(#uid) AND #token = :stale"),
		ExpressionAttributeNames: map[string]string{
			"#token": attrDeviceToken,
			"#uid":   attrUID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":stale": &types.AttributeValueMemberS{Value: staleToken},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("repository: ClearDeviceToken: %w", err)
	}
	return true, nil
}

// DeleteReceipt removes a consumed read receipt. Deleting a missing receipt
// succeeds.
func (c *Client) DeleteReceipt(ctx context.Context, conversationID, messageID string) error {
	if conversationID == "" || messageID == "" {
		return errors.New("repository: DeleteReceipt: conversation and message ids are required")
	}

	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tables.Receipts),
		Key: map[string]types.AttributeValue{
			attrConversationID: &types.AttributeValueMemberS{Value: conversationID},
			attrMessageID:      &types.AttributeValueMemberS{Value: messageID},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteReceipt: %w", err)
	}
	return nil
}

// itemToUser converts a DynamoDB attribute map to a UserRecord.
func itemToUser(item map[string]types.AttributeValue) (domain.UserRecord, error) {
	uid, err := strAttr(item, attrUID)
	if err != nil {
		return domain.UserRecord{}, err
	}
	phone, _ := strAttr(item, attrPhoneNumber) // projected by the index, tolerate absence

	u := domain.UserRecord{UID: uid, PhoneNumber: phone}
	if token, err := strAttr(item, attrDeviceToken); err == nil && token != "" && token != legacyNullToken {
		u.DeviceToken = &token
	}
	return u, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
