package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	dynamoKindPublished = "published"
	dynamoKindDraft     = "draft"
	dynamoDraftPrefix   = "draft#"
)

// dynamoAPI is the part of the DynamoDB client the store uses
type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// submissionItem is the DynamoDB item for a submission. The draft of a
// submission is a second item keyed "draft#<id>".
type submissionItem struct {
	ID            string  `dynamodbav:"id"`
	Kind          string  `dynamodbav:"kind"`
	SubmissionID  string  `dynamodbav:"submissionId"`
	Address       string  `dynamodbav:"address"`
	TaskID        string  `dynamodbav:"taskId"`
	TaskTitle     string  `dynamodbav:"taskTitle"`
	ProofLink     string  `dynamodbav:"proofLink,omitempty"`
	ScreenshotURL string  `dynamodbav:"screenshotUrl,omitempty"`
	SubmittedAt   string  `dynamodbav:"submittedAt"` // RFC3339
	Status        string  `dynamodbav:"status"`
	ReviewNote    *string `dynamodbav:"reviewNote,omitempty"`
	Rev           string  `dynamodbav:"rev"`
}

type inboxItem struct {
	ID        string `dynamodbav:"id"`
	Kind      string `dynamodbav:"kind"`
	Name      string `dynamodbav:"name,omitempty"`
	Email     string `dynamodbav:"email"`
	Source    string `dynamodbav:"source,omitempty"`
	Subject   string `dynamodbav:"subject,omitempty"`
	Message   string `dynamodbav:"message,omitempty"`
	CreatedAt string `dynamodbav:"createdAt"`
}

// DynamoStore keeps submissions in a DynamoDB table and inbox entries in
// a second table.
type DynamoStore struct {
	client     dynamoAPI
	table      string
	inboxTable string
}

// NewDynamoStore loads the default AWS config. A configured endpoint
// switches to static local credentials for dynamodb-local.
func NewDynamoStore(ctx context.Context, cfg *config.DynamoDBConfig) (*DynamoStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")))
		if cfg.Region == "" {
			opts = append(opts, awsconfig.WithRegion("us-east-1"))
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newDynamoStore(client, cfg), nil
}

func newDynamoStore(client dynamoAPI, cfg *config.DynamoDBConfig) *DynamoStore {
	return &DynamoStore{
		client:     client,
		table:      cfg.Table,
		inboxTable: cfg.InboxTable,
	}
}

func toSubmissionItem(s *model.Submission, kind string) *submissionItem {
	id := s.ID
	if kind == dynamoKindDraft {
		id = dynamoDraftPrefix + s.ID
	}
	return &submissionItem{
		ID:            id,
		Kind:          kind,
		SubmissionID:  s.ID,
		Address:       s.Address,
		TaskID:        s.TaskID,
		TaskTitle:     s.TaskTitle,
		ProofLink:     s.ProofLink,
		ScreenshotURL: s.ScreenshotURL,
		SubmittedAt:   s.SubmittedAt.UTC().Format(time.RFC3339Nano),
		Status:        s.Status,
		ReviewNote:    s.ReviewNote,
		Rev:           s.Revision,
	}
}

func (item *submissionItem) toModel() (*model.Submission, error) {
	submittedAt, err := time.Parse(time.RFC3339Nano, item.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse submittedAt: %w", err)
	}
	return &model.Submission{
		ID:            item.SubmissionID,
		Address:       item.Address,
		TaskID:        item.TaskID,
		TaskTitle:     item.TaskTitle,
		ProofLink:     item.ProofLink,
		ScreenshotURL: item.ScreenshotURL,
		SubmittedAt:   submittedAt,
		Status:        item.Status,
		ReviewNote:    item.ReviewNote,
		Revision:      item.Rev,
		Draft:         item.Kind == dynamoKindDraft,
	}, nil
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func (s *DynamoStore) getItem(ctx context.Context, id string) (*submissionItem, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item submissionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission item: %w", err)
	}
	return &item, nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	item, err := s.getItem(ctx, dynamoDraftPrefix+id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		if item, err = s.getItem(ctx, id); err != nil {
			return nil, err
		}
	}
	if item == nil {
		return nil, nil
	}
	return item.toModel()
}

func (s *DynamoStore) Create(ctx context.Context, sub *model.Submission) error {
	rev := uuid.New().String()
	item := toSubmissionItem(sub, dynamoKindPublished)
	item.Rev = rev

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal submission item: %w", err)
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     av,
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("submission %s already exists", sub.ID)
		}
		return fmt.Errorf("failed to put item in DynamoDB: %w", err)
	}

	sub.Revision = rev
	return nil
}

// Patch updates the draft item in place, or seeds a new draft from the
// published item. Every write bumps rev.
func (s *DynamoStore) Patch(ctx context.Context, id string, patch model.SubmissionPatch) error {
	draft, err := s.getItem(ctx, dynamoDraftPrefix+id)
	if err != nil {
		return err
	}
	if draft == nil {
		return s.seedDraft(ctx, id, patch)
	}

	rev := uuid.New().String()
	update := expression.Set(expression.Name("rev"), expression.Value(rev))
	for field, value := range patch.Fields() {
		update = update.Set(expression.Name(field), expression.Value(value))
	}

	cond := expression.AttributeExists(expression.Name("id"))
	if patch.IfRevision != "" {
		cond = cond.And(expression.Name("rev").Equal(expression.Value(patch.IfRevision)))
	}

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       itemKey(dynamoDraftPrefix + id),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("%w: draft of %s changed", ErrRevisionConflict, id)
		}
		return fmt.Errorf("failed to update item in DynamoDB: %w", err)
	}
	return nil
}

func (s *DynamoStore) seedDraft(ctx context.Context, id string, patch model.SubmissionPatch) error {
	published, err := s.getItem(ctx, id)
	if err != nil {
		return err
	}
	if published == nil {
		return ErrNotFound
	}
	if patch.IfRevision != "" && patch.IfRevision != published.Rev {
		return fmt.Errorf("%w: have %s, want %s", ErrRevisionConflict, published.Rev, patch.IfRevision)
	}

	sub, err := published.toModel()
	if err != nil {
		return err
	}
	patch.Apply(sub)
	sub.Revision = uuid.New().String()

	av, err := attributevalue.MarshalMap(toSubmissionItem(sub, dynamoKindDraft))
	if err != nil {
		return fmt.Errorf("failed to marshal draft item: %w", err)
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     av,
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("%w: draft of %s created concurrently", ErrRevisionConflict, id)
		}
		return fmt.Errorf("failed to put draft in DynamoDB: %w", err)
	}
	return nil
}

// Publish replaces the published item with the draft and deletes the
// draft in one transaction.
func (s *DynamoStore) Publish(ctx context.Context, id string) error {
	draft, err := s.getItem(ctx, dynamoDraftPrefix+id)
	if err != nil {
		return err
	}
	if draft == nil {
		published, err := s.getItem(ctx, id)
		if err != nil {
			return err
		}
		if published != nil {
			return nil // nothing to publish
		}
		return ErrNotFound
	}

	doc := *draft
	doc.ID = id
	doc.Kind = dynamoKindPublished
	doc.Rev = uuid.New().String()

	av, err := attributevalue.MarshalMap(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal submission item: %w", err)
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.Name("rev").Equal(expression.Value(draft.Rev))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName: aws.String(s.table),
				Item:      av,
			}},
			{Delete: &types.Delete{
				TableName:                 aws.String(s.table),
				Key:                       itemKey(dynamoDraftPrefix + id),
				ConditionExpression:       cond.Condition(),
				ExpressionAttributeNames:  cond.Names(),
				ExpressionAttributeValues: cond.Values(),
			}},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("%w: draft of %s changed before publish", ErrRevisionConflict, id)
		}
		return fmt.Errorf("failed to publish submission: %w", err)
	}
	return nil
}

// List scans published items, newest first. An empty status matches
// every submission.
func (s *DynamoStore) List(ctx context.Context, status string) ([]*model.Submission, error) {
	filter := expression.Name("kind").Equal(expression.Value(dynamoKindPublished))
	if status != "" {
		filter = filter.And(expression.Name("status").Equal(expression.Value(status)))
	}
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var result []*model.Submission
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan DynamoDB table: %w", err)
		}

		var items []submissionItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal submission items: %w", err)
		}
		for i := range items {
			sub, err := items[i].toModel()
			if err != nil {
				return nil, fmt.Errorf("failed to convert item %s: %w", items[i].ID, err)
			}
			result = append(result, sub)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmittedAt.After(result[j].SubmittedAt)
	})
	return result, nil
}

func (s *DynamoStore) AddSubscriber(ctx context.Context, sub *model.Subscriber) error {
	return s.putInbox(ctx, &inboxItem{
		ID:        "subscriber#" + sub.ID,
		Kind:      "subscriber",
		Email:     sub.Email,
		Source:    sub.Source,
		CreatedAt: sub.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *DynamoStore) AddContact(ctx context.Context, msg *model.ContactMessage) error {
	return s.putInbox(ctx, &inboxItem{
		ID:        "contact#" + msg.ID,
		Kind:      "contact",
		Name:      msg.Name,
		Email:     msg.Email,
		Subject:   msg.Subject,
		Message:   msg.Message,
		CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *DynamoStore) putInbox(ctx context.Context, item *inboxItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal inbox item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.inboxTable),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put inbox item in DynamoDB: %w", err)
	}
	return nil
}

func isConditionFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

var (
	_ DocumentStore = (*DynamoStore)(nil)
	_ InboxStore    = (*DynamoStore)(nil)
)
