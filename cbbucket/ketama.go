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
	"crypto/md5"
	"fmt"
	"sort"

	"github.com/couchbaselabs/cbrouting/cbconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// number of hash iterations per node, each contributing four ring points
const ketamaIterations = 40

type ketamaPoint struct {
	hash      uint32
	nodeIndex int
}

type MemcachedBucketConfigOptions struct {
	Logger *zap.Logger
}

// MemcachedBucketConfig is the topology snapshot for a ketama-routed
// bucket.  Keys map onto a continuum of hash points, each data node
// contributing 160 points derived from its authority string.  Like the
// vbucket config it is immutable and safe for concurrent lookups.
type MemcachedBucketConfig struct {
	bucketConfigBase

	dataNodes []NodeReference
	ring      []ketamaPoint
}

var _ BucketConfig = (*MemcachedBucketConfig)(nil)

func NewMemcachedBucketConfig(
	config *cbconfig.TerseConfigJson,
	opts MemcachedBucketConfigOptions,
) (*MemcachedBucketConfig, error) {
	base := newBucketConfigBase(config)

	var dataNodes []NodeReference
	for _, node := range base.nodes {
		if node.HasService(ServiceData) {
			dataNodes = append(dataNodes, node)
		}
	}

	if len(dataNodes) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "ketama bucket config has no data nodes")
	}

	return &MemcachedBucketConfig{
		bucketConfigBase: base,
		dataNodes:        dataNodes,
		ring:             buildKetamaRing(dataNodes),
	}, nil
}

func buildKetamaRing(dataNodes []NodeReference) []ketamaPoint {
	ring := make([]ketamaPoint, 0, len(dataNodes)*ketamaIterations*4)

	for nodeIndex, node := range dataNodes {
		authority := fmt.Sprintf("%s:%d", node.Hostname, node.DataPort())
		for iteration := 0; iteration < ketamaIterations; iteration++ {
			digest := md5.Sum([]byte(fmt.Sprintf("%s-%d", authority, iteration)))
			for split := 0; split < 4; split++ {
				ring = append(ring, ketamaPoint{
					hash:      ketamaHashFromDigest(digest, split),
					nodeIndex: nodeIndex,
				})
			}
		}
	}

	sort.Slice(ring, func(i, j int) bool {
		return ring[i].hash < ring[j].hash
	})

	return ring
}

func ketamaHashFromDigest(digest [md5.Size]byte, split int) uint32 {
	return uint32(digest[split*4+3])<<24 |
		uint32(digest[split*4+2])<<16 |
		uint32(digest[split*4+1])<<8 |
		uint32(digest[split*4])
}

func ketamaHashKey(key []byte) uint32 {
	digest := md5.Sum(key)
	return ketamaHashFromDigest(digest, 0)
}

func (c *MemcachedBucketConfig) BucketType() BucketType { return BucketTypeMemcached }

// NumDataNodes returns the number of nodes participating in the continuum.
func (c *MemcachedBucketConfig) NumDataNodes() int { return len(c.dataNodes) }

// NodeForKey returns the data node owning the given key, walking the
// continuum clockwise from the key's hash point.
func (c *MemcachedBucketConfig) NodeForKey(key []byte) NodeReference {
	hash := ketamaHashKey(key)

	index := sort.Search(len(c.ring), func(i int) bool {
		return c.ring[i].hash >= hash
	})
	if index == len(c.ring) {
		index = 0
	}

	return c.dataNodes[c.ring[index].nodeIndex]
}
