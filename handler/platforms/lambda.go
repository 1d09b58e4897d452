package platforms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/handler"
	"github.com/MaanVader/Chack/observability/types"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// LambdaAdapter runs a handler inside the AWS Lambda runtime, fed by SQS.
type LambdaAdapter struct {
	handler *handler.Handler
	config  *config.LambdaConfig
}

// NewLambdaAdapter creates a new Lambda adapter. A nil config uses the defaults.
func NewLambdaAdapter(h *handler.Handler, cfg *config.LambdaConfig) *LambdaAdapter {
	if cfg == nil {
		defaults := config.DefaultLambdaConfig()
		cfg = &defaults
	}
	return &LambdaAdapter{
		handler: h,
		config:  cfg,
	}
}

// Start hands control to the Lambda runtime. It does not return.
func (a *LambdaAdapter) Start() {
	lambda.Start(a.HandleEvent)
}

// HandleEvent is the Lambda entry point.
func (a *LambdaAdapter) HandleEvent(ctx context.Context, event json.RawMessage) (interface{}, error) {
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(event, &sqsEvent); err == nil && len(sqsEvent.Records) > 0 {
		return a.HandleSQSEvent(ctx, sqsEvent)
	}

	return nil, fmt.Errorf("unsupported event type")
}

// HandleSQSEvent processes every record. With partial batch failure enabled,
// failed records are reported individually so SQS redelivers only those.
func (a *LambdaAdapter) HandleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{
		BatchItemFailures: []events.SQSBatchItemFailure{},
	}

	for _, record := range event.Records {
		if err := a.processSQSMessage(ctx, record); err != nil {
			a.handler.Logger().Warn(ctx, "SQS message failed", types.Fields{
				"message_id": record.MessageId,
				"error":      err.Error(),
			})
			if !a.config.EnablePartialBatchFailure {
				return response, err
			}
			response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	return response, nil
}

func (a *LambdaAdapter) processSQSMessage(ctx context.Context, record events.SQSMessage) error {
	request := a.buildRequestFromSQS(record)

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	response, err := a.handler.Handle(ctx, request)
	if err != nil {
		return fmt.Errorf("handler error: %w", err)
	}

	// Non-retryable failures are dropped so SQS does not redeliver them.
	if shouldRedeliver(response, nil) {
		return fmt.Errorf("retryable error: %s", response.Error.Message)
	}

	return nil
}

func (a *LambdaAdapter) buildRequestFromSQS(record events.SQSMessage) handler.Request {
	metadata := make(map[string]string)
	for key, attr := range record.MessageAttributes {
		if attr.StringValue != nil {
			metadata[key] = *attr.StringValue
		}
	}

	metadata["sqs_message_id"] = record.MessageId
	metadata["sqs_event_source"] = record.EventSource

	return buildQueueRequest("sqs", record.MessageId, []byte(record.Body), metadata)
}
