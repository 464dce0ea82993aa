package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	dserrors "github.com/systmms/specdeploy/internal/errors"
	"github.com/systmms/specdeploy/internal/logging"
	"github.com/systmms/specdeploy/pkg/tablestore"
)

// DynamoDBClientAPI defines the subset of DynamoDB operations the rule
// deployer uses. This allows for mocking in tests.
type DynamoDBClientAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoTableStore implements tablestore.Store on AWS DynamoDB.
type DynamoTableStore struct {
	client DynamoDBClientAPI
	logger *logging.Logger
}

// DynamoOption is a functional option for configuring the table store.
type DynamoOption func(*DynamoTableStore)

// WithDynamoDBClient sets a custom DynamoDB client (for testing).
func WithDynamoDBClient(client DynamoDBClientAPI) DynamoOption {
	return func(s *DynamoTableStore) {
		s.client = client
	}
}

// NewDynamoTableStore creates a table store backed by AWS DynamoDB in the
// given region.
func NewDynamoTableStore(ctx context.Context, region string, logger *logging.Logger, opts ...DynamoOption) (*DynamoTableStore, error) {
	s := &DynamoTableStore{logger: logger}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := loadAWSConfig(ctx, region)
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB client: %w", err)
		}
		s.client = dynamodb.NewFromConfig(cfg)
	}

	return s, nil
}

// Describe verifies the table exists before any row is written. A missing
// table is a connectivity error, not a per-row write failure.
func (s *DynamoTableStore) Describe(ctx context.Context, table string) error {
	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	}

	if _, err := s.client.DescribeTable(ctx, input); err != nil {
		var notFound *ddbtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return dserrors.UserError{
				Message:    fmt.Sprintf("DynamoDB table '%s' does not exist", table),
				Suggestion: "Check the table name and region, or create the table first",
				Err:        err,
			}
		}
		return dserrors.UserError{
			Message:    "Unable to connect to AWS DynamoDB",
			Details:    err.Error(),
			Suggestion: dynamoErrorSuggestion(err),
			Err:        err,
		}
	}

	s.logger.Debug("Successfully connected to DynamoDB table: %s", table)
	return nil
}

// PutRow writes one rule row, overwriting any row with the same key.
func (s *DynamoTableStore) PutRow(ctx context.Context, table string, row tablestore.Row) error {
	item := make(map[string]ddbtypes.AttributeValue, len(row))
	for name, value := range row {
		switch value.Kind {
		case tablestore.KindNumber:
			item[name] = &ddbtypes.AttributeValueMemberN{Value: value.Raw}
		default:
			item[name] = &ddbtypes.AttributeValueMemberS{Value: value.Raw}
		}
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		return dserrors.UserError{
			Message:    fmt.Sprintf("Failed to insert item into '%s'", table),
			Details:    err.Error(),
			Suggestion: dynamoErrorSuggestion(err),
			Err:        err,
		}
	}

	return nil
}

// dynamoErrorSuggestion provides helpful suggestions based on DynamoDB errors.
func dynamoErrorSuggestion(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "accessdenied"):
		return "Check IAM permissions: dynamodb:PutItem and dynamodb:DescribeTable"
	case strings.Contains(errStr, "resourcenotfound"):
		return "Verify the table name and region. Table names are case-sensitive"
	case strings.Contains(errStr, "provisionedthroughputexceeded"), strings.Contains(errStr, "throttl"):
		return "Write capacity exceeded. Wait a moment and try again, or raise the table's write capacity"
	case strings.Contains(errStr, "validationexception"):
		return "The item shape does not match the table's key schema"
	default:
		return "Check AWS credentials, region, and IAM permissions for DynamoDB"
	}
}
