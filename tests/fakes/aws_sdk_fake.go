// Package fakes provides in-memory stand-ins for the AWS SDK clients the
// deployers talk to. They record every write so tests can assert on the
// exact payloads that would have reached the stores.
package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMPut records one PutParameter call.
type SSMPut struct {
	Name      string
	Value     string
	Type      string
	Overwrite bool
}

// FakeSSMClient is a mock implementation of the SSM client interface.
type FakeSSMClient struct {
	mu sync.Mutex

	// Puts records every PutParameter call in order.
	Puts []SSMPut

	// Errors maps parameter names to errors to return from PutParameter.
	Errors map[string]error

	// DescribeErr, when set, is returned from DescribeParameters.
	DescribeErr error

	// PutParameterFunc allows custom behavior for PutParameter.
	PutParameterFunc func(ctx context.Context, params *ssm.PutParameterInput) (*ssm.PutParameterOutput, error)
}

// NewFakeSSMClient creates a new mock SSM client.
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Errors: make(map[string]error),
	}
}

// PutParameter records the call and returns any configured error.
func (f *FakeSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	if f.PutParameterFunc != nil {
		return f.PutParameterFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	name := ""
	if params.Name != nil {
		name = *params.Name
	}
	if err, ok := f.Errors[name]; ok {
		return nil, err
	}

	put := SSMPut{Name: name, Type: string(params.Type)}
	if params.Value != nil {
		put.Value = *params.Value
	}
	if params.Overwrite != nil {
		put.Overwrite = *params.Overwrite
	}
	f.Puts = append(f.Puts, put)

	return &ssm.PutParameterOutput{}, nil
}

// DescribeParameters returns the configured error or success.
func (f *FakeSSMClient) DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error) {
	if f.DescribeErr != nil {
		return nil, f.DescribeErr
	}
	return &ssm.DescribeParametersOutput{}, nil
}

// ParameterValue returns the last value written at name.
func (f *FakeSSMClient) ParameterValue(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Puts) - 1; i >= 0; i-- {
		if f.Puts[i].Name == name {
			return f.Puts[i].Value, true
		}
	}
	return "", false
}

// FakeDynamoDBClient is a mock implementation of the DynamoDB client
// interface.
type FakeDynamoDBClient struct {
	mu sync.Mutex

	// Items records every PutItem payload per table, in order.
	Items map[string][]map[string]ddbtypes.AttributeValue

	// MissingTables makes DescribeTable fail with ResourceNotFoundException.
	MissingTables map[string]bool

	// DescribeErr, when set, is returned from DescribeTable for any table.
	DescribeErr error

	// PutItemFunc allows custom behavior for PutItem.
	PutItemFunc func(ctx context.Context, params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
}

// NewFakeDynamoDBClient creates a new mock DynamoDB client.
func NewFakeDynamoDBClient() *FakeDynamoDBClient {
	return &FakeDynamoDBClient{
		Items:         make(map[string][]map[string]ddbtypes.AttributeValue),
		MissingTables: make(map[string]bool),
	}
}

// PutItem records the item and returns any configured error.
func (f *FakeDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.PutItemFunc != nil {
		return f.PutItemFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	table := ""
	if params.TableName != nil {
		table = *params.TableName
	}
	f.Items[table] = append(f.Items[table], params.Item)

	return &dynamodb.PutItemOutput{}, nil
}

// DescribeTable fails for missing tables and succeeds otherwise.
func (f *FakeDynamoDBClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.DescribeErr != nil {
		return nil, f.DescribeErr
	}

	table := ""
	if params.TableName != nil {
		table = *params.TableName
	}
	if f.MissingTables[table] {
		return nil, &ddbtypes.ResourceNotFoundException{}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

// StringAttr extracts a string attribute from a recorded item.
func StringAttr(item map[string]ddbtypes.AttributeValue, name string) string {
	if attr, ok := item[name].(*ddbtypes.AttributeValueMemberS); ok {
		return attr.Value
	}
	return ""
}

// NumberAttr extracts a number attribute from a recorded item.
func NumberAttr(item map[string]ddbtypes.AttributeValue, name string) string {
	if attr, ok := item[name].(*ddbtypes.AttributeValueMemberN); ok {
		return attr.Value
	}
	return ""
}

// StubIDSource is a deterministic identity source. Hex16 returns values
// from HexValues in order (padding with a counter once exhausted);
// BatchGUID returns GUID.
type StubIDSource struct {
	mu        sync.Mutex
	HexValues []string
	GUID      string
	next      int
}

// Hex16 returns the next deterministic hex value.
func (s *StubIDSource) Hex16() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next < len(s.HexValues) {
		v := s.HexValues[s.next]
		s.next++
		return v
	}
	s.next++
	return fmt.Sprintf("%016x", s.next)
}

// BatchGUID returns the configured GUID.
func (s *StubIDSource) BatchGUID() string {
	if s.GUID != "" {
		return s.GUID
	}
	return "00000000-0000-0000-0000-000000000000"
}
