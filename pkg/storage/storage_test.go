package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileDestination_Save(t *testing.T) {
	dir := t.TempDir()
	dest := NewFileDestination(dir, zap.NewNop())

	path, err := dest.Save(context.Background(), "out/result.json", []byte(`{"a":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "result.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	_, err = dest.Save(context.Background(), "out/result.json", []byte(`{"a":2}`), nil)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(data))
}

func TestFileDestination_ConcurrentWritersNeverInterleave(t *testing.T) {
	dir := t.TempDir()
	dest := NewFileDestination(dir, nil)

	payloads := [][]byte{
		[]byte(`{"writer":"one"}`),
		[]byte(`{"writer":"two"}`),
		[]byte(`{"writer":"three"}`),
	}
	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			_, err := dest.Save(context.Background(), "shared.json", p, nil)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "shared.json"))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, []interface{}{"one", "two", "three"}, doc["writer"])
}

func TestFileDestination_RequiresName(t *testing.T) {
	_, err := NewFileDestination(t.TempDir(), nil).Save(context.Background(), "", nil, nil)
	assert.Error(t, err)
}

func TestNewAzureBlobClient(t *testing.T) {
	tests := []struct {
		name             string
		connectionString string
		containerName    string
		errContains      string
	}{
		{
			name:          "empty connection string",
			containerName: "outputs",
			errContains:   "connection string is required",
		},
		{
			name:             "empty container name",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			errContains:      "container name is required",
		},
		{
			name:             "missing key",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test",
			containerName:    "outputs",
			errContains:      "account name and key are required",
		},
		{
			name:             "valid",
			connectionString: "DefaultEndpointsProtocol=https;AccountName=test;AccountKey=dGVzdA==;EndpointSuffix=core.windows.net",
			containerName:    "outputs",
		},
		{
			name:             "azurite over http",
			connectionString: "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=dGVzdA==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;",
			containerName:    "outputs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewAzureBlobClient(tt.connectionString, tt.containerName, nil)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Nil(t, client)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestNewAzureBlobClient_ServiceURL(t *testing.T) {
	client, err := NewAzureBlobClient("AccountName=acct;AccountKey=dGVzdA==", "c", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net", client.serviceURL)

	client, err = NewAzureBlobClient("AccountName=acct;AccountKey=dGVzdA==;BlobEndpoint=http://localhost:10000/acct/", "c", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:10000/acct", client.serviceURL)
}

func TestExtractBlobPath(t *testing.T) {
	const svc = "https://acct.blob.core.windows.net"
	tests := []struct {
		ref  string
		want string
	}{
		{"runs/greet/abc.json", "runs/greet/abc.json"},
		{"/outputs/runs/greet/abc.json", "runs/greet/abc.json"},
		{svc + "/outputs/runs/abc.json?sv=2023&sig=x", "runs/abc.json"},
		{"https://other.example.com/outputs/a%20b.json", "a b.json"},
	}
	for _, tt := range tests {
		got, err := extractBlobPath(svc, "outputs", tt.ref)
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.want, got, tt.ref)
	}

	_, err := extractBlobPath(svc, "outputs", "  ")
	assert.Error(t, err)
	_, err = extractBlobPath(svc, "outputs", svc+"/outputs/")
	assert.Error(t, err)
}

type fakeBlobClient struct {
	paths    []string
	metadata map[string]string
	err      error
}

func (f *fakeBlobClient) Upload(_ context.Context, blobPath string, _ []byte, metadata map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, blobPath)
	f.metadata = metadata
	return "https://blob/" + blobPath, nil
}

func (f *fakeBlobClient) Download(context.Context, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func TestAzureBlobDestination_Save(t *testing.T) {
	fake := &fakeBlobClient{}
	dest := NewAzureBlobDestination(fake, "/kage/")

	loc, err := dest.Save(context.Background(), "/output.json", []byte(`{}`), map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "https://blob/kage/output.json", loc)
	assert.Equal(t, []string{"kage/output.json"}, fake.paths)
	assert.Equal(t, "r1", fake.metadata["run_id"])

	_, err = NewAzureBlobDestination(nil, "").Save(context.Background(), "x", nil, nil)
	assert.Error(t, err)
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	msgs     []*nats.Msg
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("connection lost")
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakePublisher) FlushWithContext(context.Context) error { return nil }

func TestNATSDestination_Save(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	dest := NewNATSDestination(pub, "kage.output", zap.NewNop()).WithRetry(2, time.Millisecond)

	loc, err := dest.Save(context.Background(), "greet", []byte(`{"greeting":"hi"}`), map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "kage.output", loc)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "greet", pub.msgs[0].Header.Get("Kage-Name"))
	assert.Equal(t, "r1", pub.msgs[0].Header.Get("Kage-Run-Id"))
	assert.JSONEq(t, `{"greeting":"hi"}`, string(pub.msgs[0].Data))
}

func TestNATSDestination_GivesUp(t *testing.T) {
	pub := &fakePublisher{failures: 10}
	dest := NewNATSDestination(pub, "kage.output", nil).WithRetry(1, time.Millisecond)

	_, err := dest.Save(context.Background(), "x", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestRunRecord(t *testing.T) {
	ok := NewRunRecord("r1", "parallel", 3, 1500*time.Millisecond, map[string]interface{}{"a": 1.0}, nil, nil)
	assert.Equal(t, StatusSuccess, ok.Meta.Status)
	assert.Nil(t, ok.Error)
	assert.Equal(t, int64(1500), ok.Meta.ExecutionTimeMs)
	assert.Equal(t, "3", ok.Metadata()["bindings"])

	failed := NewRunRecord("r2", "sequential", 1, 0, nil, errors.New("boom"), []string{"f"})
	assert.Equal(t, StatusFailed, failed.Meta.Status)
	assert.Equal(t, []string{"f"}, failed.Error.Bindings)
	assert.NotNil(t, failed.Output)

	fake := &fakeBlobClient{}
	loc, err := SaveRecord(context.Background(), NewAzureBlobDestination(fake, ""), "greet", ok)
	require.NoError(t, err)
	assert.Equal(t, "https://blob/runs/greet/r1.json", loc)
	assert.Equal(t, "success", fake.metadata["status"])
}
