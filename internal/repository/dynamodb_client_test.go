package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	queryOut        *dynamodb.QueryOutput
	queryErr        error
	updateErr       error
	deleteErr       error
	lastQueryIn     *dynamodb.QueryInput
	lastUpdateInput *dynamodb.UpdateItemInput
	lastDeleteInput *dynamodb.DeleteItemInput
	updateCalls     int
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdateInput = in
	f.updateCalls++
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDeleteInput = in
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

func makeUserItem(uid, phone, token string) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"uid":          &types.AttributeValueMemberS{Value: uid},
		"phone_number": &types.AttributeValueMemberS{Value: phone},
	}
	if token != "" {
		item["device_instance_id"] = &types.AttributeValueMemberS{Value: token}
	}
	return item
}

func testTables() Tables {
	return Tables{Users: "users", PhoneIndex: "phone_number-index", Receipts: "receipts"}
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, testTables())
	require.NoError(t, err)
	return c
}

func TestFindUsersByPhoneNumber_SingleMatch(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{makeUserItem("u-1", "+1111", "tok-1")},
	}}
	c := mustNewClient(t, db)

	users, err := c.FindUsersByPhoneNumber(context.Background(), "+1111")
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "u-1", users[0].UID)
	require.Equal(t, "+1111", users[0].PhoneNumber)
	require.True(t, users[0].HasDeviceToken())
	require.Equal(t, "tok-1", users[0].Token())
}

func TestFindUsersByPhoneNumber_QueryShape(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	c := mustNewClient(t, db)

	_, err := c.FindUsersByPhoneNumber(context.Background(), "+1111")
	require.NoError(t, err)
	require.Equal(t, "users", *db.lastQueryIn.TableName)
	require.Equal(t, "phone_number-index", *db.lastQueryIn.IndexName)
	require.Equal(t, "#phone = :phone", *db.lastQueryIn.KeyConditionExpression)
	require.Equal(t, "phone_number", db.lastQueryIn.ExpressionAttributeNames["#phone"])
	require.Equal(t, "+1111", db.lastQueryIn.ExpressionAttributeValues[":phone"].(*types.AttributeValueMemberS).Value)
	require.EqualValues(t, 2, *db.lastQueryIn.Limit)
}

func TestFindUsersByPhoneNumber_NoMatch(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	c := mustNewClient(t, db)

	users, err := c.FindUsersByPhoneNumber(context.Background(), "+9999")
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestFindUsersByPhoneNumber_MultipleMatches(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			makeUserItem("u-1", "+1111", "tok-1"),
			makeUserItem("u-2", "+1111", "tok-2"),
		},
	}}
	c := mustNewClient(t, db)

	users, err := c.FindUsersByPhoneNumber(context.Background(), "+1111")
	require.NoError(t, err)
	require.Len(t, users, 2)
}

func TestFindUsersByPhoneNumber_AbsentAndLegacyTokens(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{name: "absent", token: ""},
		{name: "legacy null string", token: "null"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{
				Items: []map[string]types.AttributeValue{makeUserItem("u-1", "+1111", tc.token)},
			}}
			c := mustNewClient(t, db)

			users, err := c.FindUsersByPhoneNumber(context.Background(), "+1111")
			require.NoError(t, err)
			require.Len(t, users, 1)
			require.Nil(t, users[0].DeviceToken)
			require.False(t, users[0].HasDeviceToken())
		})
	}
}

func TestFindUsersByPhoneNumber_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ProvisionedThroughputExceededException")}
	c := mustNewClient(t, db)

	_, err := c.FindUsersByPhoneNumber(context.Background(), "+1111")
	require.Error(t, err)
	require.Contains(t, err.Error(), "FindUsersByPhoneNumber")
}

func TestFindUsersByPhoneNumber_MalformedItem(t *testing.T) {
	item := map[string]types.AttributeValue{
		"uid": &types.AttributeValueMemberN{Value: "12"},
	}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
	c := mustNewClient(t, db)

	_, err := c.FindUsersByPhoneNumber(context.Background(), "+1111")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a string")
}

func TestClearDeviceToken_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	cleared, err := c.ClearDeviceToken(context.Background(), "u-1", "tok-1")
	require.NoError(t, err)
	require.True(t, cleared)

	in := db.lastUpdateInput
	require.NotNil(t, in)
	require.Equal(t, "users", *in.TableName)
	require.Equal(t, "u-1", in.Key["uid"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "REMOVE #token", *in.UpdateExpression)
	require.Equal(t, "attribute_exists(#uid) AND #token = :stale", *in.ConditionExpression)
	require.Equal(t, "device_instance_id", in.ExpressionAttributeNames["#token"])
	require.Equal(t, "tok-1", in.ExpressionAttributeValues[":stale"].(*types.AttributeValueMemberS).Value)
}

func TestClearDeviceToken_ConditionFailedIsNoop(t *testing.T) {
	db := &fakeDynamo{updateErr: fmt.Errorf("operation error: %w", &types.ConditionalCheckFailedException{Message: strPtr("condition failed")})}
	c := mustNewClient(t, db)

	cleared, err := c.ClearDeviceToken(context.Background(), "u-1", "tok-1")
	require.NoError(t, err)
	require.False(t, cleared)
}

func TestClearDeviceToken_DynamoError(t *testing.T) {
	db := &fakeDynamo{updateErr: errors.New("internal server error")}
	c := mustNewClient(t, db)

	_, err := c.ClearDeviceToken(context.Background(), "u-1", "tok-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ClearDeviceToken")
}

func TestClearDeviceToken_MissingUID(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	_, err := c.ClearDeviceToken(context.Background(), " ", "tok-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "uid is required")
	require.Zero(t, db.updateCalls)
}

func TestDeleteReceipt_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	err := c.DeleteReceipt(context.Background(), "conv-1", "m42")
	require.NoError(t, err)
	require.Equal(t, "receipts", *db.lastDeleteInput.TableName)
	require.Equal(t, "conv-1", db.lastDeleteInput.Key["conversation_id"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "m42", db.lastDeleteInput.Key["message_id"].(*types.AttributeValueMemberS).Value)
}

func TestDeleteReceipt_DynamoError(t *testing.T) {
	db := &fakeDynamo{deleteErr: errors.New("ResourceNotFoundException")}
	c := mustNewClient(t, db)

	err := c.DeleteReceipt(context.Background(), "conv-1", "m42")
	require.Error(t, err)
	require.Contains(t, err.Error(), "DeleteReceipt")
}

func TestDeleteReceipt_MissingKeys(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	err := c.DeleteReceipt(context.Background(), "", "m42")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
	require.Nil(t, db.lastDeleteInput)
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, testTables())
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestNew_EmptyTableNames(t *testing.T) {
	cases := []struct {
		name   string
		tables Tables
		want   string
	}{
		{name: "users", tables: Tables{PhoneIndex: "idx", Receipts: "r"}, want: "users table"},
		{name: "index", tables: Tables{Users: "u", Receipts: "r"}, want: "phone index"},
		{name: "receipts", tables: Tables{Users: "u", PhoneIndex: "idx", Receipts: " "}, want: "receipts table"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(&fakeDynamo{}, tc.tables)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func strPtr(s string) *string { return &s }
