package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/handler"
	"github.com/MaanVader/Chack/handler/mocks"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func envelopeBody(t *testing.T, id, requestType, payload string) string {
	t.Helper()
	body, err := json.Marshal(handler.Request{ID: id, Type: requestType, Payload: json.RawMessage(payload)})
	require.NoError(t, err)
	return string(body)
}

func TestLambdaAdapter_EnvelopeRecord(t *testing.T) {
	worker := new(mocks.MockWorker)
	worker.On("Name").Return("assessments")
	worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
		return req.ID == "req-1" &&
			req.Type == "scan.run" &&
			req.Source == "sqs" &&
			req.Metadata["sqs_message_id"] == "m-1" &&
			string(req.Payload) == `{"assessmentId":"a-1"}`
	})).Return(handler.Response{Success: true}, nil)

	adapter := NewLambdaAdapter(newTestHandler(worker, handler.PlatformLambda), nil)

	resp, err := adapter.HandleSQSEvent(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: envelopeBody(t, "req-1", "scan.run", `{"assessmentId":"a-1"}`)},
	}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	worker.AssertExpectations(t)
}

func TestLambdaAdapter_PlainRecordUsesAttributes(t *testing.T) {
	worker := new(mocks.MockWorker)
	worker.On("Name").Return("assessments")
	worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
		return req.ID == "m-2" && req.Type == "scan.run" && string(req.Payload) == `{"assessmentId":"a-2"}`
	})).Return(handler.Response{Success: true}, nil)

	adapter := NewLambdaAdapter(newTestHandler(worker, handler.PlatformLambda), nil)
	typ := "scan.run"

	resp, err := adapter.HandleSQSEvent(context.Background(), events.SQSEvent{Records: []events.SQSMessage{{
		MessageId: "m-2",
		Body:      `{"assessmentId":"a-2"}`,
		MessageAttributes: map[string]events.SQSMessageAttribute{
			"type": {StringValue: &typ, DataType: "String"},
		},
	}}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	worker.AssertExpectations(t)
}

func TestLambdaAdapter_PartialBatchFailure(t *testing.T) {
	worker := new(mocks.MockWorker)
	worker.On("Name").Return("assessments")
	worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool { return req.ID == "ok" })).
		Return(handler.Response{Success: true}, nil)
	worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool { return req.ID == "retry" })).
		Return(handler.NewErrorResponse("retry", handler.CodeTemporary, "store unavailable", ""), nil)
	worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool { return req.ID == "bad" })).
		Return(handler.NewErrorResponse("bad", handler.CodeValidation, "missing id", ""), nil)

	cfg := config.LambdaConfig{EnablePartialBatchFailure: true}
	adapter := NewLambdaAdapter(newTestHandler(worker, handler.PlatformLambda), &cfg)

	resp, err := adapter.HandleSQSEvent(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-ok", Body: envelopeBody(t, "ok", "scan.run", `{}`)},
		{MessageId: "m-retry", Body: envelopeBody(t, "retry", "scan.run", `{}`)},
		{MessageId: "m-bad", Body: envelopeBody(t, "bad", "scan.run", `{}`)},
	}})

	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m-retry", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestLambdaAdapter_WholeBatchFailure(t *testing.T) {
	worker := new(mocks.MockWorker)
	worker.On("Name").Return("assessments")
	worker.ExpectProcessAny(handler.Response{}, errors.New("boom"))

	cfg := config.LambdaConfig{EnablePartialBatchFailure: false}
	adapter := NewLambdaAdapter(newTestHandler(worker, handler.PlatformLambda), &cfg)

	_, err := adapter.HandleSQSEvent(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: envelopeBody(t, "r-1", "scan.run", `{}`)},
	}})

	assert.ErrorContains(t, err, "boom")
}

func TestLambdaAdapter_HandleEventUnsupported(t *testing.T) {
	adapter := NewLambdaAdapter(newTestHandler(new(mocks.MockWorker), handler.PlatformLambda), nil)

	_, err := adapter.HandleEvent(context.Background(), json.RawMessage(`{"detail-type":"Scheduled Event"}`))
	assert.ErrorContains(t, err, "unsupported event type")
}

func TestDecodeEnvelope(t *testing.T) {
	_, ok := decodeEnvelope([]byte(`{"assessmentId":"a-1"}`))
	assert.False(t, ok)

	_, ok = decodeEnvelope([]byte(`not json`))
	assert.False(t, ok)

	req, ok := decodeEnvelope([]byte(`{"id":"r","type":"scan.run","payload":{"assessmentId":"a-1"}}`))
	require.True(t, ok)
	assert.Equal(t, "scan.run", req.Type)
}

func TestBuildQueueRequest_WrapsNonJSONBody(t *testing.T) {
	req := buildQueueRequest("sqs", "m-1", []byte("hello"), map[string]string{})

	assert.Equal(t, "m-1", req.ID)
	assert.Equal(t, "sqs_message", req.Type)
	assert.JSONEq(t, `"hello"`, string(req.Payload))
}
