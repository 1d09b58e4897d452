package logger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaanVader/Chack/observability/types"
)

type fakeCloudWatchLogs struct {
	mu sync.Mutex

	groupErr  error
	streamErr error

	groups     []string
	streams    []string
	retentions int
	puts       []*cloudwatchlogs.PutLogEventsInput
}

func (f *fakeCloudWatchLogs) CreateLogGroup(_ context.Context, params *cloudwatchlogs.CreateLogGroupInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, aws.ToString(params.LogGroupName))
	return &cloudwatchlogs.CreateLogGroupOutput{}, f.groupErr
}

func (f *fakeCloudWatchLogs) PutRetentionPolicy(_ context.Context, _ *cloudwatchlogs.PutRetentionPolicyInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retentions++
	return &cloudwatchlogs.PutRetentionPolicyOutput{}, nil
}

func (f *fakeCloudWatchLogs) CreateLogStream(_ context.Context, params *cloudwatchlogs.CreateLogStreamInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, aws.ToString(params.LogStreamName))
	return &cloudwatchlogs.CreateLogStreamOutput{}, f.streamErr
}

func (f *fakeCloudWatchLogs) PutLogEvents(_ context.Context, params *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, params)
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

func (f *fakeCloudWatchLogs) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, in := range f.puts {
		for _, e := range in.LogEvents {
			out = append(out, aws.ToString(e.Message))
		}
	}
	return out
}

func TestCloudWatchLogsSink_ShipsLoggerEntries(t *testing.T) {
	client := &fakeCloudWatchLogs{}
	sink, err := NewCloudWatchLogsSinkWithClient(context.Background(), client, "/chack/test/chack", "chack-test-1", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, []string{"/chack/test/chack"}, client.groups)
	assert.Equal(t, []string{"chack-test-1"}, client.streams)
	assert.Equal(t, 1, client.retentions)

	log := sink.Logger("chack.executor", "test", "info", types.Fields{"component": "executor"})
	log.Info(context.Background(), "Scan completed", types.Fields{"findings": 5})
	log.Debug(context.Background(), "filtered out", nil)
	log.Error(context.Background(), "Scan failed", errors.New("scanner crashed"), nil)

	require.NoError(t, sink.Close())

	msgs := client.messages()
	require.Len(t, msgs, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msgs[0]), &entry))
	assert.Equal(t, "Scan completed", entry["message"])
	assert.Equal(t, "chack.executor", entry["service"])
	assert.Equal(t, float64(5), entry["findings"])
	assert.NotContains(t, msgs[0], "\n")

	assert.Equal(t, "/chack/test/chack", aws.ToString(client.puts[0].LogGroupName))
	assert.Equal(t, "chack-test-1", aws.ToString(client.puts[0].LogStreamName))
}

func TestCloudWatchLogsSink_ToleratesExistingResources(t *testing.T) {
	exists := &cwltypes.ResourceAlreadyExistsException{Message: aws.String("exists")}
	client := &fakeCloudWatchLogs{groupErr: exists, streamErr: exists}

	sink, err := NewCloudWatchLogsSinkWithClient(context.Background(), client, "/chack/test/chack", "chack-test-1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	assert.Equal(t, 0, client.retentions)
}

func TestCloudWatchLogsSink_SetupErrors(t *testing.T) {
	_, err := NewCloudWatchLogsSinkWithClient(context.Background(), &fakeCloudWatchLogs{}, "", "stream", time.Hour)
	assert.Error(t, err)

	denied := errors.New("AccessDeniedException")
	_, err = NewCloudWatchLogsSinkWithClient(context.Background(), &fakeCloudWatchLogs{streamErr: denied}, "/chack/test/chack", "chack-test-1", time.Hour)
	assert.ErrorIs(t, err, denied)
}

func TestCloudWatchLogsSink_WriteAfterClose(t *testing.T) {
	client := &fakeCloudWatchLogs{}
	sink, err := NewCloudWatchLogsSinkWithClient(context.Background(), client, "/chack/test/chack", "chack-test-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	_, err = sink.Write([]byte("late\n"))
	assert.Error(t, err)
	assert.Empty(t, client.messages())
}
