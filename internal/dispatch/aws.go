package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/job-radar/internal/jobs"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// LoadAWSConfig resolves credentials the standard AWS way for the region.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

// SNSSink publishes a short summary to a topic.
type SNSSink struct {
	client   SNSService
	topicARN string
}

func NewSNSSink(client SNSService, topicARN string) (*SNSSink, error) {
	if client == nil || topicARN == "" {
		return nil, errors.New("sns sink needs a client and a topic arn")
	}
	return &SNSSink{client: client, topicARN: topicARN}, nil
}

func NewSNSSinkFromConfig(cfg aws.Config, topicARN string) (*SNSSink, error) {
	return NewSNSSink(sns.NewFromConfig(cfg), topicARN)
}

func (s *SNSSink) Name() string { return "sns" }

func (s *SNSSink) Deliver(ctx context.Context, d jobs.Dispatch) error {
	subject := Subject(d)
	// SNS caps subjects at 100 characters.
	if len(subject) > 100 {
		subject = subject[:97] + "..."
	}
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(Text(d)),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.topicARN, err)
	}
	return nil
}

// SESSink emails the notification with the outreach body.
type SESSink struct {
	client SESService
	from   string
	to     []string
}

func NewSESSink(client SESService, from string, to []string) (*SESSink, error) {
	if client == nil || from == "" || len(to) == 0 {
		return nil, errors.New("ses sink needs a client, a sender and recipients")
	}
	return &SESSink{client: client, from: from, to: to}, nil
}

func NewSESSinkFromConfig(cfg aws.Config, from string, to []string) (*SESSink, error) {
	return NewSESSink(ses.NewFromConfig(cfg), from, to)
}

func (s *SESSink) Name() string { return "ses" }

func (s *SESSink) Deliver(ctx context.Context, d jobs.Dispatch) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: s.to},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(Subject(d))},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(Text(d))},
			},
		},
		Source: aws.String(s.from),
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
