/*
Copyright 2026-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

package cbbucket

import (
	"fmt"
	"testing"

	"github.com/couchbaselabs/cbrouting/cbconfig"
	"github.com/stretchr/testify/require"
)

func testKetamaConfig() *cbconfig.TerseConfigJson {
	return &cbconfig.TerseConfigJson{
		Rev:         42,
		Name:        "session-cache",
		NodeLocator: "ketama",
		NodesExt: []cbconfig.TerseExtNodeJson{
			testNodeExt("10.0.0.1", 11210),
			testNodeExt("10.0.0.2", 11210),
			{
				// query-only node, must not join the continuum
				Hostname: "10.0.0.9",
				Services: map[string]int{ServiceMgmt: 8091, ServiceQuery: 8093},
			},
			testNodeExt("10.0.0.3", 11210),
		},
	}
}

func TestMemcachedBucketConfig(t *testing.T) {
	bucketConfig, err := NewMemcachedBucketConfig(testKetamaConfig(), MemcachedBucketConfigOptions{})
	require.NoError(t, err)

	require.Equal(t, BucketTypeMemcached, bucketConfig.BucketType())
	require.Equal(t, "session-cache", bucketConfig.Name())
	require.Equal(t, 3, bucketConfig.NumDataNodes())

	t.Run("Deterministic", func(t *testing.T) {
		first := bucketConfig.NodeForKey([]byte("user::1234"))
		for i := 0; i < 10; i++ {
			require.Equal(t, first, bucketConfig.NodeForKey([]byte("user::1234")))
		}
	})

	t.Run("OnlyDataNodesSelected", func(t *testing.T) {
		for i := 0; i < 500; i++ {
			node := bucketConfig.NodeForKey([]byte(fmt.Sprintf("key-%d", i)))
			require.NotEqual(t, "10.0.0.9", node.Hostname)
			require.True(t, node.HasService(ServiceData))
		}
	})

	t.Run("AllDataNodesReachable", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 2000; i++ {
			node := bucketConfig.NodeForKey([]byte(fmt.Sprintf("doc::%d", i)))
			seen[node.Hostname] = struct{}{}
		}
		require.Len(t, seen, 3)
	})

	t.Run("StableAcrossRebuilds", func(t *testing.T) {
		rebuilt, err := NewMemcachedBucketConfig(testKetamaConfig(), MemcachedBucketConfigOptions{})
		require.NoError(t, err)

		for i := 0; i < 100; i++ {
			key := []byte(fmt.Sprintf("stable-%d", i))
			require.Equal(t, bucketConfig.NodeForKey(key), rebuilt.NodeForKey(key))
		}
	})
}

func TestMemcachedBucketConfigNoDataNodes(t *testing.T) {
	config := testKetamaConfig()
	config.NodesExt = []cbconfig.TerseExtNodeJson{
		{Hostname: "10.0.0.9", Services: map[string]int{ServiceMgmt: 8091}},
	}

	_, err := NewMemcachedBucketConfig(config, MemcachedBucketConfigOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseTerseConfigDispatch(t *testing.T) {
	t.Run("Vbucket", func(t *testing.T) {
		bucketConfig, err := ParseTerseConfig(testTerseConfig(), ParseOptions{})
		require.NoError(t, err)
		require.Equal(t, BucketTypeCouchbase, bucketConfig.BucketType())
	})

	t.Run("DefaultLocator", func(t *testing.T) {
		config := testTerseConfig()
		config.NodeLocator = ""

		bucketConfig, err := ParseTerseConfig(config, ParseOptions{})
		require.NoError(t, err)
		require.Equal(t, BucketTypeCouchbase, bucketConfig.BucketType())
	})

	t.Run("Ketama", func(t *testing.T) {
		bucketConfig, err := ParseTerseConfig(testKetamaConfig(), ParseOptions{})
		require.NoError(t, err)
		require.Equal(t, BucketTypeMemcached, bucketConfig.BucketType())
	})

	t.Run("UnknownLocator", func(t *testing.T) {
		config := testTerseConfig()
		config.NodeLocator = "moxi"

		_, err := ParseTerseConfig(config, ParseOptions{})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}
