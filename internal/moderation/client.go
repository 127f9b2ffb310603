package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"

	"mediapipe/internal/config"
	"mediapipe/internal/services"
)

// API is the Step Functions surface the client uses.
type API interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	DescribeExecution(ctx context.Context, params *sfn.DescribeExecutionInput, optFns ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error)
	DescribeStateMachine(ctx context.Context, params *sfn.DescribeStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.DescribeStateMachineOutput, error)
}

// Verdict is the settled result of a moderation execution.
type Verdict struct {
	Safe   bool
	Labels []string
}

// StepFunctions submits and polls moderation executions.
type StepFunctions struct {
	api             API
	stateMachineARN string
}

// New loads AWS settings and builds a client. Static keys from config take
// precedence over the default credential chain.
func New(ctx context.Context, cfg config.Moderation) (*StepFunctions, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region := strings.TrimSpace(cfg.Region); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "moderation", "load aws config", "", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	api := sfn.NewFromConfig(awsCfg, func(o *sfn.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		// The workflow owns retries.
		o.RetryMaxAttempts = 1
	})
	return NewWithAPI(api, cfg.StateMachineARN), nil
}

// NewWithAPI wraps an existing Step Functions client.
func NewWithAPI(api API, stateMachineARN string) *StepFunctions {
	return &StepFunctions{api: api, stateMachineARN: strings.TrimSpace(stateMachineARN)}
}

type executionInput struct {
	FileID   string `json:"fileId"`
	ImageURL string `json:"imageUrl"`
}

// Submit starts moderation of imageURL and returns the execution id. A
// replay for the same file returns the existing execution.
func (s *StepFunctions) Submit(ctx context.Context, fileID, imageURL string) (string, error) {
	input, err := json.Marshal(executionInput{FileID: fileID, ImageURL: imageURL})
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "moderation", "submit", "encode input", err)
	}
	out, err := s.api.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(s.stateMachineARN),
		Name:            aws.String(fileID),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		var exists *types.ExecutionAlreadyExists
		if errors.As(err, &exists) {
			if arn, ok := executionARN(s.stateMachineARN, fileID); ok {
				return arn, nil
			}
		}
		return "", classify(ctx, "submit", err)
	}
	return aws.ToString(out.ExecutionArn), nil
}

// Verdict describes the execution and interprets its output.
func (s *StepFunctions) Verdict(ctx context.Context, executionID string) (Verdict, error) {
	out, err := s.api.DescribeExecution(ctx, &sfn.DescribeExecutionInput{ExecutionArn: aws.String(executionID)})
	if err != nil {
		var missing *types.ExecutionDoesNotExist
		if errors.As(err, &missing) {
			// Recoverable from the dead-letter queue once the execution is restarted.
			return Verdict{}, services.Wrap(services.ErrTransient, "moderation", "verdict", "execution does not exist", err)
		}
		return Verdict{}, classify(ctx, "verdict", err)
	}

	switch out.Status {
	case types.ExecutionStatusSucceeded:
		return parseOutput(aws.ToString(out.Output))
	case types.ExecutionStatusRunning, types.ExecutionStatusPendingRedrive:
		return Verdict{}, services.Wrap(services.ErrNotReady, "moderation", "verdict", "execution "+strings.ToLower(string(out.Status)), nil)
	default:
		return Verdict{}, services.Wrap(services.ErrTransient, "moderation", "verdict",
			fmt.Sprintf("execution ended %s: %s", out.Status, aws.ToString(out.Error)), nil)
	}
}

// HealthCheck verifies the state machine is reachable.
func (s *StepFunctions) HealthCheck(ctx context.Context) error {
	if s.stateMachineARN == "" {
		return services.Wrap(services.ErrConfiguration, "moderation", "health", "state machine arn is not configured", nil)
	}
	if _, err := s.api.DescribeStateMachine(ctx, &sfn.DescribeStateMachineInput{StateMachineArn: aws.String(s.stateMachineARN)}); err != nil {
		return classify(ctx, "health", err)
	}
	return nil
}

type executionOutput struct {
	ModerationLabels *[]struct {
		Name       string  `json:"Name"`
		Confidence float64 `json:"Confidence"`
	} `json:"ModerationLabels"`
}

func parseOutput(raw string) (Verdict, error) {
	var out executionOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Verdict{}, services.Wrap(services.ErrTransient, "moderation", "verdict", "decode execution output", err)
	}
	if out.ModerationLabels == nil {
		return Verdict{}, services.Wrap(services.ErrTransient, "moderation", "verdict", "execution output has no ModerationLabels", nil)
	}
	labels := make([]string, 0, len(*out.ModerationLabels))
	for _, label := range *out.ModerationLabels {
		labels = append(labels, label.Name)
	}
	return Verdict{Safe: len(labels) == 0, Labels: labels}, nil
}

// executionARN derives arn:...:execution:<machine>:<name> from the state
// machine ARN.
func executionARN(stateMachineARN, name string) (string, bool) {
	const marker = ":stateMachine:"
	if !strings.Contains(stateMachineARN, marker) {
		return "", false
	}
	return strings.Replace(stateMachineARN, marker, ":execution:", 1) + ":" + name, true
}

func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return services.Wrap(services.ErrTransient, "moderation", op, "step functions call failed", err)
}
