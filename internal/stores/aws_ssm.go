// Package stores implements the parameter store and table store contracts
// on AWS: SSM Parameter Store for configuration blobs and secrets,
// DynamoDB for rule rows. SDK clients hide behind small interfaces so
// tests can inject fakes.
package stores

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	dserrors "github.com/systmms/specdeploy/internal/errors"
	"github.com/systmms/specdeploy/internal/logging"
	"github.com/systmms/specdeploy/pkg/paramstore"
)

// SSMClientAPI defines the subset of AWS SSM Parameter Store operations
// the deployer uses. This allows for mocking in tests.
type SSMClientAPI interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error)
}

// SSMParameterStore implements paramstore.Store on AWS SSM.
type SSMParameterStore struct {
	client SSMClientAPI
	logger *logging.Logger
}

// SSMOption is a functional option for configuring the SSM store.
type SSMOption func(*SSMParameterStore)

// WithSSMClient sets a custom SSM client (for testing).
func WithSSMClient(client SSMClientAPI) SSMOption {
	return func(s *SSMParameterStore) {
		s.client = client
	}
}

// NewSSMParameterStore creates a parameter store backed by AWS SSM in the
// given region.
func NewSSMParameterStore(ctx context.Context, region string, logger *logging.Logger, opts ...SSMOption) (*SSMParameterStore, error) {
	s := &SSMParameterStore{logger: logger}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := loadAWSConfig(ctx, region)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSM client: %w", err)
		}
		s.client = ssm.NewFromConfig(cfg)
	}

	return s, nil
}

// Put writes one parameter, overwriting any existing value at that path.
func (s *SSMParameterStore) Put(ctx context.Context, name, value string, kind paramstore.Kind) error {
	s.logger.Debug("Creating %s parameter: %s", string(kind), name)

	input := &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterType(kind),
		Overwrite: aws.Bool(true),
	}

	if _, err := s.client.PutParameter(ctx, input); err != nil {
		return dserrors.UserError{
			Message:    fmt.Sprintf("Failed to create parameter %s", name),
			Details:    err.Error(),
			Suggestion: ssmErrorSuggestion(err),
			Err:        err,
		}
	}

	s.logger.Debug("Successfully created parameter: %s", name)
	return nil
}

// Validate checks connectivity with a minimal-permission call before any
// writes are attempted.
func (s *SSMParameterStore) Validate(ctx context.Context) error {
	input := &ssm.DescribeParametersInput{
		MaxResults: aws.Int32(1),
	}

	if _, err := s.client.DescribeParameters(ctx, input); err != nil {
		return dserrors.UserError{
			Message:    "Unable to connect to AWS SSM Parameter Store",
			Details:    err.Error(),
			Suggestion: ssmErrorSuggestion(err),
			Err:        err,
		}
	}

	return nil
}

// ssmErrorSuggestion provides helpful suggestions based on SSM errors.
func ssmErrorSuggestion(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "accessdenied"):
		return "Check IAM permissions: ssm:PutParameter, ssm:DescribeParameters, and kms:Encrypt (for SecureString)"
	case strings.Contains(errStr, "parameterlimitexceeded"):
		return "The account has reached its SSM parameter limit. Delete unused parameters or request a limit increase"
	case strings.Contains(errStr, "invalidkeyid"):
		return "The KMS key for SecureString parameters may not exist or you lack kms:Encrypt permission"
	case strings.Contains(errStr, "throttl"):
		return "Request was throttled. Wait a moment and try again"
	case strings.Contains(errStr, "region"):
		return "Check that you're using the correct AWS region"
	default:
		return "Check AWS credentials, region, and IAM permissions for SSM Parameter Store"
	}
}

// loadAWSConfig loads the default AWS configuration for a region.
func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var configOpts []func(*awsconfig.LoadOptions) error

	if region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return cfg, nil
}
