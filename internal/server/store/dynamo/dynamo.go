// Package dynamo is the DynamoDB store backend.
//
// Every user is one item keyed by userId. The item carries the account
// fields and a "releases" map attribute holding the whole release
// collection, so release edits are nested document updates on the user
// item ("releases.<id>.<field>"). Email lookups go through a global
// secondary index whose partition key is the email attribute.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dmitrijs2005/releasekeeper/internal/common"
	"github.com/dmitrijs2005/releasekeeper/internal/server/models"
	"github.com/dmitrijs2005/releasekeeper/internal/server/store"
)

const (
	// PartitionKey is the table's partition key attribute.
	PartitionKey = "userId"
	// EmailAttr is the partition key of the email index.
	EmailAttr = "email"
	// SessionAttr holds the id of the user's current session.
	SessionAttr = "sessionId"

	requestedSignaturesAttr = models.FieldRequestedSignatures
)

// API is the subset of the DynamoDB client used by [Store].
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// userItem is the stored shape of a user.
type userItem struct {
	UserID    string                     `dynamodbav:"userId"`
	Email     string                     `dynamodbav:"email"`
	Password  []byte                     `dynamodbav:"password"`
	SessionID string                     `dynamodbav:"sessionId"`
	Releases  map[string]*models.Release `dynamodbav:"releases"`
}

// Store is a DynamoDB implementation of [store.Store].
//
// Use [New] to create a Store, [Store.Connect] to create the DynamoDB
// client and [Store.Init] to check the table.
type Store struct {
	client    API
	tableName string
	awsCfg    *aws.Config
	opts      *Options
}

var _ store.Store = (*Store)(nil)

// New creates a Store for tableName. Call [Store.Connect] before use.
func New(awsCfg *aws.Config, tableName string, opts ...Option) *Store {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Store{
		awsCfg:    awsCfg,
		tableName: tableName,
		opts:      options,
	}
}

// Connect creates the DynamoDB client from the AWS config passed to [New],
// or uses the API injected with [WithAPI].
func (s *Store) Connect() error {
	if err := s.opts.validate(); err != nil {
		return fmt.Errorf("invalid DynamoDB options: %w", err)
	}

	if s.opts.dynamoDBAPI != nil {
		s.client = s.opts.dynamoDBAPI
	} else {
		s.client = dynamodb.NewFromConfig(*s.awsCfg)
	}

	return nil
}

// Init checks that the table exists and is active, is keyed by userId and
// has the email index.
func (s *Store) Init(ctx context.Context) error {
	response, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		var notFoundError *dynamodbtypes.ResourceNotFoundException
		if errors.As(err, &notFoundError) {
			return fmt.Errorf("table %s does not exist", s.tableName)
		}
		return fmt.Errorf("failed to describe table %s: %w", s.tableName, err)
	}

	table := response.Table
	if table == nil || len(table.KeySchema) < 1 {
		return fmt.Errorf("table %s has no key schema", s.tableName)
	}

	if aws.ToString(table.KeySchema[0].AttributeName) != PartitionKey {
		return fmt.Errorf("table %s has partition key %s, expected %s", s.tableName, aws.ToString(table.KeySchema[0].AttributeName), PartitionKey)
	}

	if table.TableStatus != dynamodbtypes.TableStatusActive {
		return fmt.Errorf("table %s is not active (status: %s)", s.tableName, table.TableStatus)
	}

	for _, index := range table.GlobalSecondaryIndexes {
		if aws.ToString(index.IndexName) != s.opts.emailIndex {
			continue
		}
		if len(index.KeySchema) < 1 || aws.ToString(index.KeySchema[0].AttributeName) != EmailAttr {
			return fmt.Errorf("global secondary index %s is not keyed by %s", s.opts.emailIndex, EmailAttr)
		}
		if index.IndexStatus != dynamodbtypes.IndexStatusActive {
			return fmt.Errorf("global secondary index %s is not active (status: %s)", s.opts.emailIndex, index.IndexStatus)
		}
		return nil
	}

	return fmt.Errorf("global secondary index %s not found", s.opts.emailIndex)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	email := strings.ToLower(u.Email)

	if _, err := s.userIDByEmail(ctx, email); err == nil {
		return common.ErrAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	releases := u.Releases
	if releases == nil {
		releases = map[string]*models.Release{}
	}

	item, err := attributevalue.MarshalMap(userItem{
		UserID:    u.ID,
		Email:     email,
		Password:  u.PasswordHash,
		SessionID: u.SessionID,
		Releases:  releases,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(PartitionKey))).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("failed to write user to DynamoDB table %s: %w", s.tableName, err)
	}

	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	id, err := s.userIDByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, err
	}
	return s.FindUserByID(ctx, id)
}

func (s *Store) FindUserByID(ctx context.Context, userID string) (*models.User, error) {
	item, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:           item.UserID,
		Email:        item.Email,
		PasswordHash: item.Password,
		SessionID:    item.SessionID,
		Releases:     item.Releases,
	}, nil
}

func (s *Store) SetSession(ctx context.Context, userID, sessionID string) error {
	update := expression.Set(expression.Name(SessionAttr), expression.Value(sessionID))
	return s.update(ctx, userID, update, userExists())
}

func (s *Store) GetReleases(ctx context.Context, userID string) (map[string]*models.Release, error) {
	item, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return item.Releases, nil
}

// ApplyRelease writes the initial release first when u is a creation and
// then sets each assigned field at its nested path. The merge is
// conditioned on the release existing.
func (s *Store) ApplyRelease(ctx context.Context, userID string, u *store.Update) error {
	if u.Create() {
		create := expression.Set(releaseName(u.ReleaseID), expression.Value(u.Init))
		if err := s.update(ctx, userID, create, userExists()); err != nil {
			return err
		}
	}

	if len(u.Assignments) == 0 {
		return nil
	}

	var update expression.UpdateBuilder
	for i, a := range u.Assignments {
		name := expression.Name(strings.Join(store.FullPath(u.ReleaseID, a.Path...), "."))
		if i == 0 {
			update = expression.Set(name, expression.Value(a.Value))
			continue
		}
		update = update.Set(name, expression.Value(a.Value))
	}

	return s.update(ctx, userID, update, releaseExists(u.ReleaseID))
}

func (s *Store) ReplaceReleases(ctx context.Context, userID string, releases map[string]*models.Release) error {
	if releases == nil {
		releases = map[string]*models.Release{}
	}
	update := expression.Set(expression.Name(store.ReleasesAttr), expression.Value(releases))
	return s.update(ctx, userID, update, userExists())
}

func (s *Store) RemoveRelease(ctx context.Context, userID, releaseID string) error {
	return s.update(ctx, userID, expression.Remove(releaseName(releaseID)), userExists())
}

func (s *Store) AppendSignatureRequest(ctx context.Context, userID, releaseID string, sr *models.SignatureRequest) error {
	list := signaturesName(releaseID)
	update := expression.Set(list, expression.ListAppend(
		expression.IfNotExists(list, expression.Value([]*models.SignatureRequest{})),
		expression.Value([]*models.SignatureRequest{sr}),
	))
	return s.update(ctx, userID, update, releaseExists(releaseID))
}

// RemoveSignatureRequest removes the request by list index. The write is
// conditioned on the id still being at that index.
func (s *Store) RemoveSignatureRequest(ctx context.Context, userID, releaseID, requestID string) error {
	releases, err := s.GetReleases(ctx, userID)
	if err != nil {
		return err
	}

	rel, ok := releases[releaseID]
	if !ok || rel == nil {
		return fmt.Errorf("release %s: %w", releaseID, common.ErrorNotFound)
	}

	idx := rel.FindSignatureRequest(requestID)
	if idx < 0 {
		return fmt.Errorf("signature request %s: %w", requestID, common.ErrorNotFound)
	}

	element := strings.Join(store.FullPath(releaseID, requestedSignaturesAttr), ".") + "[" + strconv.Itoa(idx) + "]"
	cond := expression.Name(element + ".signatureRequestId").Equal(expression.Value(requestID))

	return s.update(ctx, userID, expression.Remove(expression.Name(element)), cond)
}

func (s *Store) getUser(ctx context.Context, userID string) (*userItem, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            userKey(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read user from DynamoDB table %s: %w", s.tableName, err)
	}

	if len(out.Item) == 0 {
		return nil, common.ErrorNotFound
	}

	var item userItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	if item.Releases == nil {
		item.Releases = map[string]*models.Release{}
	}
	for _, r := range item.Releases {
		if r != nil && r.RequestedSignatures == nil {
			r.RequestedSignatures = []*models.SignatureRequest{}
		}
	}

	return &item, nil
}

func (s *Store) userIDByEmail(ctx context.Context, email string) (string, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(EmailAttr).Equal(expression.Value(email))).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build key condition: %w", err)
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(s.opts.emailIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to query index %s: %w", s.opts.emailIndex, err)
	}

	switch len(out.Items) {
	case 0:
		return "", common.ErrorNotFound
	case 1:
	default:
		return "", fmt.Errorf("multiple users found with email %s", email)
	}

	var item struct {
		UserID string `dynamodbav:"userId"`
	}
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return "", fmt.Errorf("failed to unmarshal index item: %w", err)
	}

	return item.UserID, nil
}

// update runs one conditional UpdateItem on the user's item. A failed
// condition is reported as common.ErrorNotFound.
func (s *Store) update(ctx context.Context, userID string, update expression.UpdateBuilder, cond expression.ConditionBuilder) error {
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build update expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       userKey(userID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("failed to update user in DynamoDB table %s: %w", s.tableName, err)
	}

	return nil
}

func userKey(userID string) map[string]dynamodbtypes.AttributeValue {
	return map[string]dynamodbtypes.AttributeValue{
		PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: userID},
	}
}

func releaseName(releaseID string) expression.NameBuilder {
	return expression.Name(strings.Join(store.FullPath(releaseID), "."))
}

func signaturesName(releaseID string) expression.NameBuilder {
	return expression.Name(strings.Join(store.FullPath(releaseID, requestedSignaturesAttr), "."))
}

func userExists() expression.ConditionBuilder {
	return expression.AttributeExists(expression.Name(PartitionKey))
}

func releaseExists(releaseID string) expression.ConditionBuilder {
	return expression.AttributeExists(releaseName(releaseID))
}

func isConditionFailed(err error) bool {
	var ccf *dynamodbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
