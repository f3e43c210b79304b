package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/internal/funding"
)

// SNSAPI is the subset of the SNS client used for event publishing.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher forwards ledger events to an SNS topic. Subscribers can filter on the
// event_type and project_id message attributes.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
	logger   *zap.Logger
}

func NewSNSPublisher(client SNSAPI, topicARN string, logger *zap.Logger) *SNSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SNSPublisher{client: client, topicARN: topicARN, logger: logger}
}

// Publish implements funding.EventPublisher.
func (p *SNSPublisher) Publish(ctx context.Context, event funding.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		Subject:  aws.String(string(event.Type)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
			"project_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.ProjectID.String()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s to sns: %w", event.Type, err)
	}

	if out != nil && out.MessageId != nil {
		p.logger.Debug("Ledger event published",
			zap.String("type", string(event.Type)),
			zap.String("message_id", *out.MessageId))
	}
	return nil
}
