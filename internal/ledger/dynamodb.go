package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/enhancely/api/internal/model"
)

// DynamoAPI is the subset of the DynamoDB client the ledger uses
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

const (
	dynamoKeyAttr = "enhancementId"
	dynamoTTLAttr = "expiresAt"
)

// DynamoLedger stores jobs in a DynamoDB table keyed by enhancementId.
type DynamoLedger struct {
	client DynamoAPI
	table  string
	ttl    time.Duration
}

// NewDynamoLedger creates a DynamoDB backed ledger. When ttl is positive every
// new item carries an expiresAt attribute for the table's TTL setting.
func NewDynamoLedger(client DynamoAPI, table string, ttl time.Duration) *DynamoLedger {
	return &DynamoLedger{
		client: client,
		table:  table,
		ttl:    ttl,
	}
}

// Create puts the item with attribute_not_exists on the key.
func (l *DynamoLedger) Create(ctx context.Context, job *model.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if l.ttl > 0 {
		item[dynamoTTLAttr] = unixAttr(job.CreatedAt.Add(l.ttl))
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": dynamoKeyAttr,
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrExists
		}
		return fmt.Errorf("failed to put job: %w", err)
	}
	return nil
}

// Get reads the item with strong consistency so a poll right after submit
// always sees the pending record.
func (l *DynamoLedger) Get(ctx context.Context, jobID string) (*model.Job, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		Key:            keyOf(jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var job model.Job
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Transition issues a conditional UpdateItem that only succeeds when the
// stored status is one of the legal predecessors of t.To.
func (l *DynamoLedger) Transition(ctx context.Context, jobID string, t Transition) (*model.Job, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	names := map[string]string{
		"#id":     dynamoKeyAttr,
		"#status": "status",
	}
	values := map[string]types.AttributeValue{
		":to": &types.AttributeValueMemberS{Value: string(t.To)},
		":at": unixAttr(at),
	}

	var update string
	switch t.To {
	case model.JobStatusProcessing:
		names["#ts"] = "startedAt"
		update = "SET #status = :to, #ts = :at"
	case model.JobStatusCompleted:
		names["#ts"] = "completedAt"
		names["#result"] = "enhancedImageS3Key"
		values[":result"] = &types.AttributeValueMemberS{Value: t.ResultLocator}
		update = "SET #status = :to, #ts = :at, #result = :result"
	case model.JobStatusFailed:
		names["#ts"] = "completedAt"
		names["#err"] = "errorDetail"
		values[":err"] = &types.AttributeValueMemberS{Value: t.Detail}
		update = "SET #status = :to, #ts = :at, #err = :err"
	}

	condition := "attribute_exists(#id) AND #status IN ("
	for i, from := range model.PredecessorsOf(t.To) {
		placeholder := ":from" + strconv.Itoa(i)
		values[placeholder] = &types.AttributeValueMemberS{Value: string(from)}
		if i > 0 {
			condition += ", "
		}
		condition += placeholder
	}
	condition += ")"

	out, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(l.table),
		Key:                       keyOf(jobID),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return nil, fmt.Errorf("failed to update job: %w", err)
		}
		// Either the item is missing or its status forbids the move.
		current, getErr := l.Get(ctx, jobID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, t.To)
	}

	var job model.Job
	if err := attributevalue.UnmarshalMap(out.Attributes, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func keyOf(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoKeyAttr: &types.AttributeValueMemberS{Value: jobID},
	}
}

func unixAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}
