// Package platforms adapts a handler.Handler to the transports the service
// runs on: a plain HTTP server, AWS Lambda fed by SQS, and a RabbitMQ consumer.
package platforms

import (
	"encoding/json"
	"time"

	"github.com/MaanVader/Chack/handler"
)

// decodeEnvelope reports whether body is a complete handler.Request as
// published by the queue adapters.
func decodeEnvelope(body []byte) (handler.Request, bool) {
	var req handler.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return handler.Request{}, false
	}
	if req.Type == "" || len(req.Payload) == 0 {
		return handler.Request{}, false
	}
	return req, true
}

// buildQueueRequest turns a raw queue message into a handler.Request.
// Envelopes keep their own id and type; anything else is routed by the
// transport attributes and carried as the payload.
func buildQueueRequest(source, messageID string, body []byte, metadata map[string]string) handler.Request {
	if req, ok := decodeEnvelope(body); ok {
		req.Source = source
		for k, v := range metadata {
			req.SetMetadata(k, v)
		}
		if req.ID == "" {
			req.ID = messageID
		}
		if req.Timestamp.IsZero() {
			req.Timestamp = time.Now().UTC()
		}
		return req
	}

	payload := json.RawMessage(body)
	if !json.Valid(body) {
		wrapped, _ := json.Marshal(string(body))
		payload = wrapped
	}

	requestType := source + "_message"
	if t, ok := metadata["type"]; ok && t != "" {
		requestType = t
	}

	requestID := messageID
	if id, ok := metadata["request_id"]; ok && id != "" {
		requestID = id
	}

	return handler.Request{
		ID:        requestID,
		Source:    source,
		Type:      requestType,
		Payload:   payload,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

// shouldRedeliver reports whether a queue message should go back to the
// broker: transport-level failures and retryable error responses.
func shouldRedeliver(resp handler.Response, err error) bool {
	if err != nil {
		return true
	}
	return !resp.Success && resp.Error != nil && resp.Error.Retryable
}
