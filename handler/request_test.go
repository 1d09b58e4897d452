package handler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	t.Run("struct payload", func(t *testing.T) {
		payload := struct {
			AssessmentID string `json:"assessmentId"`
			UserID       string `json:"userId"`
		}{AssessmentID: "a-1", UserID: "u-1"}

		req, err := NewRequest("scan.run", payload)

		require.NoError(t, err)
		assert.NotEmpty(t, req.ID)
		assert.Equal(t, "scan.run", req.Type)
		assert.NotNil(t, req.Metadata)
		assert.NotZero(t, req.Timestamp)
		assert.JSONEq(t, `{"assessmentId":"a-1","userId":"u-1"}`, string(req.Payload))
	})

	t.Run("nil payload", func(t *testing.T) {
		req, err := NewRequest("assessment.list", nil)

		require.NoError(t, err)
		assert.Equal(t, "null", string(req.Payload))
	})

	t.Run("unmarshalable payload", func(t *testing.T) {
		_, err := NewRequest("bad", make(chan int))
		assert.Error(t, err)
	})
}

func TestRequest_Unmarshal(t *testing.T) {
	req := Request{Payload: json.RawMessage(`{"assessmentId":"a-1"}`)}

	var out struct {
		AssessmentID string `json:"assessmentId"`
	}
	require.NoError(t, req.Unmarshal(&out))
	assert.Equal(t, "a-1", out.AssessmentID)
}

func TestRequest_Metadata(t *testing.T) {
	var req Request

	_, ok := req.GetMetadata("trace_id")
	assert.False(t, ok)

	req.SetMetadata("trace_id", "t-1")
	v, ok := req.GetMetadata("trace_id")
	assert.True(t, ok)
	assert.Equal(t, "t-1", v)
}

func TestNewErrorResponse(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
	}{
		{CodeValidation, false},
		{CodeNotFound, false},
		{CodeTimeout, true},
		{CodeTemporary, true},
		{CodeServiceUnavailable, true},
		{CodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			resp := NewErrorResponse("req-1", tt.code, "message", "details")

			assert.False(t, resp.Success)
			assert.Equal(t, "req-1", resp.ID)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
		})
	}
}

func TestNewSuccessResponse(t *testing.T) {
	resp, err := NewSuccessResponse("req-1", map[string]string{"assessmentId": "a-1"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)

	var data map[string]string
	require.NoError(t, resp.Unmarshal(&data))
	assert.Equal(t, "a-1", data["assessmentId"])

	empty, err := NewSuccessResponse("req-2", nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Data)
}
