package cbconfig

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const testTerseBucketJson = `{
	"rev": 33,
	"revEpoch": 1,
	"name": "default",
	"nodeLocator": "vbucket",
	"uuid": "9c4f1bcd84bbf9a2f211d2f336be4b1a",
	"uri": "/pools/default/buckets/default",
	"streamingUri": "/pools/default/bucketsStreaming/default",
	"bucketCapabilities": ["couchapi", "dcp"],
	"nodesExt": [
		{"services": {"mgmt": 8091, "kv": 11210}, "thisNode": true, "hostname": "$HOST"}
	],
	"vBucketServerMap": {
		"hashAlgorithm": "CRC",
		"numReplicas": 0,
		"serverList": ["$HOST:11210"],
		"vBucketMap": [[0], [0], [0], [0]]
	}
}`

func TestFetchTerseBucket(t *testing.T) {
	var seenPath string
	var seenAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		seenAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testTerseBucketJson))
	}))
	defer server.Close()

	fetcher := NewFetcher(FetcherOptions{
		Host:     server.URL,
		Username: "Administrator",
		Password: "password",
	})

	config, err := fetcher.FetchTerseBucket(context.Background(), "default")
	require.NoError(t, err)

	require.Equal(t, "/pools/default/b/default", seenPath)
	require.NotEmpty(t, seenAuth)

	require.Equal(t, 33, config.Rev)
	require.Equal(t, 1, config.RevEpoch)
	require.Equal(t, "default", config.Name)
	require.Equal(t, "vbucket", config.NodeLocator)
	require.Len(t, config.NodesExt, 1)

	// $HOST must have been replaced with the address we fetched from
	require.Equal(t, "127.0.0.1", config.NodesExt[0].Hostname)
	require.Equal(t, []string{"127.0.0.1:11210"}, config.VBucketServerMap.ServerList)
	require.Len(t, config.VBucketServerMap.VBucketMap, 4)
}

func TestFetchTerseBucketErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewFetcher(FetcherOptions{
		Host: server.URL,
	})

	_, err := fetcher.FetchTerseBucket(context.Background(), "missing")
	require.Error(t, err)
}
