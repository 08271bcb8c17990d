package cbtopology

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchbaselabs/cbrouting/cbbucket"
	"github.com/couchbaselabs/cbrouting/cbconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTerseBucketJson(rev int) string {
	return fmt.Sprintf(`{
		"rev": %d,
		"revEpoch": 1,
		"name": "default",
		"nodeLocator": "vbucket",
		"nodesExt": [
			{"services": {"mgmt": 8091, "kv": 11210}, "thisNode": true, "hostname": "$HOST"}
		],
		"vBucketServerMap": {
			"hashAlgorithm": "CRC",
			"numReplicas": 0,
			"serverList": ["$HOST:11210"],
			"vBucketMap": [[0], [0], [0], [0]]
		}
	}`, rev)
}

func TestWatchBucket(t *testing.T) {
	var numRequests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools/default/b/default", r.URL.Path)

		// every poll observes a newer revision
		rev := int(numRequests.Add(1))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testTerseBucketJson(rev)))
	}))
	defer server.Close()

	fetcher := cbconfig.NewFetcher(cbconfig.FetcherOptions{
		Host: server.URL,
	})

	poller, err := NewPollingProvider(PollingProviderOptions{
		Fetcher:      fetcher,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	cancelCtx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	bucketConfigs, err := poller.WatchBucket(cancelCtx, "default")
	require.NoError(t, err)

	readOne := func() cbbucket.BucketConfig {
		select {
		case bucketConfig, ok := <-bucketConfigs:
			require.True(t, ok, "config channel closed unexpectedly")
			return bucketConfig
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for a bucket config")
			return nil
		}
	}

	firstConfig := readOne()
	require.Equal(t, "default", firstConfig.Name())
	require.Equal(t, cbbucket.BucketTypeCouchbase, firstConfig.BucketType())
	require.Equal(t, []uint64{1, 1}, firstConfig.Revision())

	couchbaseConfig, ok := firstConfig.(*cbbucket.CouchbaseBucketConfig)
	require.True(t, ok)
	require.Equal(t, 4, couchbaseConfig.NumPartitions())
	require.Equal(t, "127.0.0.1", couchbaseConfig.NodeAtIndex(0).Hostname)

	// revisions only ever move forwards across published configs
	lastRevision := firstConfig.Revision()
	for i := 0; i < 3; i++ {
		nextConfig := readOne()
		require.Greater(t, nextConfig.Revision()[0], lastRevision[0])
		lastRevision = nextConfig.Revision()
	}

	cancelFn()

	waitCh := time.After(5 * time.Second)
waitCancelLoop:
	for {
		select {
		case _, ok := <-bucketConfigs:
			if !ok {
				// closed
				break waitCancelLoop
			}
		case <-waitCh:
			t.Fatalf("failed to close the stream")
		}
	}
}

func TestWatchBucketInitialFetchFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := cbconfig.NewFetcher(cbconfig.FetcherOptions{
		Host: server.URL,
	})

	poller, err := NewPollingProvider(PollingProviderOptions{
		Fetcher:      fetcher,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = poller.WatchBucket(context.Background(), "missing")
	require.Error(t, err)
}
