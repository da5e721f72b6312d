package flush

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/recordcache"
)

// ErrAlreadyPersisted is returned when a NEW record is flushed but the table
// already holds an item for its position.
var ErrAlreadyPersisted = errors.New("flush: record already persisted")

// DynamoDBClient is the interface for DynamoDB operations.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoDBFlusher writes every flushed record as one item.
//
// Table schema:
//   - Partition key: cluster_id (number)
//   - Sort key: position (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name records \
//	  --attribute-definitions AttributeName=cluster_id,AttributeType=N AttributeName=position,AttributeType=N \
//	  --key-schema AttributeName=cluster_id,KeyType=HASH AttributeName=position,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DynamoDBFlusher struct {
	client DynamoDBClient
	table  string
}

// DynamoDB returns a flusher writing to table.
func DynamoDB(client DynamoDBClient, table string) *DynamoDBFlusher {
	return &DynamoDBFlusher{client: client, table: table}
}

func itemKey(clusterID int32, position int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"cluster_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(clusterID), 10)},
		"position":   &types.AttributeValueMemberN{Value: strconv.FormatInt(position, 10)},
	}
}

// FlushRecord implements recordcache.Flusher. NEW records are written with a
// condition that no item exists yet, so a NEW record never overwrites a
// durable one.
func (f *DynamoDBFlusher) FlushRecord(ctx context.Context, rec recordcache.Record) error {
	item := itemKey(rec.ClusterID, rec.Position)
	item["segment"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(rec.DataSegmentID), 10)}
	item["state"] = &types.AttributeValueMemberS{Value: rec.State.String()}
	item["content"] = &types.AttributeValueMemberB{Value: rec.Content}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(f.table),
		Item:      item,
	}
	if rec.State == recordcache.StateNew {
		input.ConditionExpression = aws.String("attribute_not_exists(#pos)")
		input.ExpressionAttributeNames = map[string]string{"#pos": "position"}
	}

	_, err := f.client.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: cluster %d position %d", ErrAlreadyPersisted, rec.ClusterID, rec.Position)
		}
		return fmt.Errorf("dynamodb put: %w", err)
	}
	return nil
}

// Load reads a record item. The second result is false if no item exists.
func (f *DynamoDBFlusher) Load(ctx context.Context, clusterID int32, position int64) (recordcache.Record, bool, error) {
	out, err := f.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(f.table),
		Key:            itemKey(clusterID, position),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return recordcache.Record{}, false, fmt.Errorf("dynamodb get: %w", err)
	}
	if len(out.Item) == 0 {
		return recordcache.Record{}, false, nil
	}

	rec := recordcache.Record{ClusterID: clusterID, Position: position}

	seg, ok := out.Item["segment"].(*types.AttributeValueMemberN)
	if !ok {
		return recordcache.Record{}, false, fmt.Errorf("%w: missing segment", ErrInvalidEnvelope)
	}
	n, err := strconv.ParseInt(seg.Value, 10, 32)
	if err != nil {
		return recordcache.Record{}, false, fmt.Errorf("%w: segment: %w", ErrInvalidEnvelope, err)
	}
	rec.DataSegmentID = int32(n)

	state, ok := out.Item["state"].(*types.AttributeValueMemberS)
	if !ok {
		return recordcache.Record{}, false, fmt.Errorf("%w: missing state", ErrInvalidEnvelope)
	}
	if rec.State, err = recordcache.ParseRecordState(state.Value); err != nil {
		return recordcache.Record{}, false, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	if content, ok := out.Item["content"].(*types.AttributeValueMemberB); ok {
		rec.Content = content.Value
	}
	return rec, true, nil
}
