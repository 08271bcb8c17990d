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
	"github.com/couchbaselabs/cbrouting/cbconfig"
	"github.com/pkg/errors"
)

// NoOwner is the in-map sentinel the server uses for a partition position
// that exists but has no node assigned to it yet, typically while a
// failover is waiting on a takeover.  It is distinct from
// PartitionNotExistent, which marks positions that are out of range.
const NoOwner = -1

// Partition holds the ownership row for a single vbucket: the index of the
// master node within the partition-host list, followed by the replica node
// indexes in replica order.
type Partition struct {
	Master   int
	Replicas []int
}

// partitionInfo is the decoded form of the vBucketServerMap section of a
// terse config.
type partitionInfo struct {
	numReplicas       int
	partitionHosts    []string
	partitions        []Partition
	forwardPartitions []Partition
	tainted           bool
}

func parsePartitionRows(rows [][]int) []Partition {
	partitions := make([]Partition, 0, len(rows))
	for _, row := range rows {
		partition := Partition{Master: NoOwner}
		if len(row) > 0 {
			partition.Master = row[0]
			partition.Replicas = row[1:]
		}
		partitions = append(partitions, partition)
	}
	return partitions
}

func parsePartitionInfo(serverMap *cbconfig.VBucketServerMapJson) (*partitionInfo, error) {
	if serverMap == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "config is missing a vbucket server map")
	}

	if len(serverMap.VBucketMap) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "config has an empty vbucket map")
	}

	info := &partitionInfo{
		numReplicas:    serverMap.NumReplicas,
		partitionHosts: serverMap.ServerList,
		partitions:     parsePartitionRows(serverMap.VBucketMap),
	}

	// the presence of a forward map is what marks the bucket as tainted,
	// the server only distributes one while a rebalance is moving vbuckets
	if serverMap.VBucketMapForward != nil {
		info.forwardPartitions = parsePartitionRows(serverMap.VBucketMapForward)
		info.tainted = true
	}

	return info, nil
}
