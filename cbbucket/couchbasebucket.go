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
	"net"
	"strconv"
	"strings"

	"github.com/couchbaselabs/cbrouting/cbconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// PartitionNotExistent is returned by the ownership lookups when the
// requested partition or replica position does not exist in the map.  This
// is an expected transient case when requests race a topology change, the
// caller retries rather than failing.  Valid node indexes are >= 0 and the
// in-map "no owner assigned" sentinel is NoOwner (-1), so the three cases
// stay distinguishable.
const PartitionNotExistent = -2

// the capability marker whose absence identifies an ephemeral bucket
const capabilityCouchApi = "couchapi"

type CouchbaseBucketConfigOptions struct {
	Logger *zap.Logger
}

// CouchbaseBucketConfig is the topology snapshot for a vbucket-routed
// bucket.  It is immutable once built, all lookup methods are safe to call
// concurrently.
type CouchbaseBucketConfig struct {
	bucketConfigBase

	numReplicas       int
	tainted           bool
	ephemeral         bool
	partitions        []Partition
	forwardPartitions []Partition
	partitionHosts    []NodeReference
	primaryHostnames  map[string]struct{}
}

var _ BucketConfig = (*CouchbaseBucketConfig)(nil)

func NewCouchbaseBucketConfig(
	config *cbconfig.TerseConfigJson,
	opts CouchbaseBucketConfigOptions,
) (*CouchbaseBucketConfig, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	base := newBucketConfigBase(config)

	info, err := parsePartitionInfo(config.VBucketServerMap)
	if err != nil {
		return nil, err
	}

	partitionHosts, err := buildPartitionHosts(base.nodes, info.partitionHosts, logger)
	if err != nil {
		return nil, err
	}

	primaryHostnames, err := buildPrimaryHostnames(base.nodes, info.partitions)
	if err != nil {
		return nil, err
	}

	// Bucket capabilities identify ephemeral buckets by the couchapi marker
	// being missing.  A config without any capability list comes from a
	// server old enough to not have ephemeral buckets at all.
	ephemeral := config.BucketCapabilities != nil &&
		!slices.Contains(config.BucketCapabilities, capabilityCouchApi)

	return &CouchbaseBucketConfig{
		bucketConfigBase:  base,
		numReplicas:       info.numReplicas,
		tainted:           info.tainted,
		ephemeral:         ephemeral,
		partitions:        info.partitions,
		forwardPartitions: info.forwardPartitions,
		partitionHosts:    partitionHosts,
		primaryHostnames:  primaryHostnames,
	}, nil
}

// splitHostDescriptor parses one serverList entry of the form host[:port].
// A missing port yields 0, which matches any data port.  A port suffix
// that is present but not numeric degrades to 0 as well, ports are only
// advisory disambiguation.  An empty descriptor is a fatal config error.
func splitHostDescriptor(rawHost string, logger *zap.Logger) (string, int, error) {
	if rawHost == "" {
		return "", 0, errors.Wrap(ErrInvalidConfig, "empty partition host descriptor")
	}

	if !strings.Contains(rawHost, ":") {
		return rawHost, 0, nil
	}

	host, portStr, err := net.SplitHostPort(rawHost)
	if err != nil || host == "" {
		return "", 0, errors.Wrapf(ErrInvalidConfig, "could not resolve %s on config building", rawHost)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		logger.Warn("could not parse port from the node address, fallback to 0",
			zap.String("host", rawHost))
		port = 0
	}

	return host, port, nil
}

// buildPartitionHosts resolves the raw serverList descriptors against the
// node reference list, producing the ordered list that partition indexes
// point into.
func buildPartitionHosts(
	nodes []NodeReference,
	rawHosts []string,
	logger *zap.Logger,
) ([]NodeReference, error) {
	partitionHosts := make([]NodeReference, 0, len(rawHosts))

	for _, rawHost := range rawHosts {
		host, directPort, err := splitHostDescriptor(rawHost, logger)
		if err != nil {
			return nil, err
		}

		numMatches := 0
		for _, node := range nodes {
			if node.Hostname == host && (node.DataPort() == directPort || directPort == 0) {
				partitionHosts = append(partitionHosts, node)
				numMatches++
			}
		}

		if numMatches > 1 {
			// more than one node shares this address and the descriptor
			// carried no port to disambiguate with
			ambiguousHostMatches.Inc()
			logger.Warn("partition host descriptor matched multiple nodes",
				zap.String("host", rawHost),
				zap.Int("matches", numMatches))
		}
	}

	if len(partitionHosts) != len(rawHosts) {
		return nil, errors.Wrapf(ErrInvalidConfig,
			"partition size is not equal after conversion (%d != %d)",
			len(partitionHosts), len(rawHosts))
	}

	return partitionHosts, nil
}

// buildPrimaryHostnames pre-computes the set of node addresses that hold
// at least one active master partition.
func buildPrimaryHostnames(nodes []NodeReference, partitions []Partition) (map[string]struct{}, error) {
	primaries := make(map[string]struct{}, len(nodes))
	for _, partition := range partitions {
		index := partition.Master
		if index < 0 {
			continue
		}
		if index >= len(nodes) {
			return nil, errors.Wrapf(ErrInvalidConfig,
				"master index %d exceeds node list length %d", index, len(nodes))
		}
		primaries[nodes[index].Hostname] = struct{}{}
	}
	return primaries, nil
}

func (c *CouchbaseBucketConfig) BucketType() BucketType { return BucketTypeCouchbase }

// NumPartitions returns the number of vbuckets in the current map.
func (c *CouchbaseBucketConfig) NumPartitions() int { return len(c.partitions) }

// NumReplicas returns the replica count the bucket is configured with.
func (c *CouchbaseBucketConfig) NumReplicas() int { return c.numReplicas }

// Tainted indicates a rebalance affecting this bucket is in progress.
func (c *CouchbaseBucketConfig) Tainted() bool { return c.tainted }

// Ephemeral indicates the bucket has no persistent storage backing.
func (c *CouchbaseBucketConfig) Ephemeral() bool { return c.ephemeral }

// HasFastForwardMap indicates whether this config carries a fast-forward
// map to route against during rebalance.
func (c *CouchbaseBucketConfig) HasFastForwardMap() bool {
	return c.forwardPartitions != nil
}

func (c *CouchbaseBucketConfig) selectPartitions(useFastForward bool) ([]Partition, error) {
	if useFastForward {
		if c.forwardPartitions == nil {
			return nil, ErrNoFastForwardMap
		}
		return c.forwardPartitions, nil
	}
	return c.partitions, nil
}

// NodeIndexForMaster returns the partition-host index of the master for
// the given partition.  Out-of-range partitions yield PartitionNotExistent
// rather than an error, requests legitimately race topology shrinks.
func (c *CouchbaseBucketConfig) NodeIndexForMaster(partition int, useFastForward bool) (int, error) {
	partitions, err := c.selectPartitions(useFastForward)
	if err != nil {
		return PartitionNotExistent, err
	}

	if partition < 0 || partition >= len(partitions) {
		return PartitionNotExistent, nil
	}

	return partitions[partition].Master, nil
}

// NodeIndexForReplica returns the partition-host index of the given
// replica for the given partition, with the same bounds semantics as
// NodeIndexForMaster.
func (c *CouchbaseBucketConfig) NodeIndexForReplica(partition, replica int, useFastForward bool) (int, error) {
	partitions, err := c.selectPartitions(useFastForward)
	if err != nil {
		return PartitionNotExistent, err
	}

	if partition < 0 || partition >= len(partitions) {
		return PartitionNotExistent, nil
	}

	replicas := partitions[partition].Replicas
	if replica < 0 || replica >= len(replicas) {
		return PartitionNotExistent, nil
	}

	return replicas[replica], nil
}

// NodeAtIndex returns the node reference at the given partition-host
// index.  Callers must only pass indexes previously returned by this
// config, anything else panics.
func (c *CouchbaseBucketConfig) NodeAtIndex(nodeIndex int) NodeReference {
	return c.partitionHosts[nodeIndex]
}

// HasPrimaryPartitionsOnNode indicates whether the node at the given
// address holds at least one active master partition.
func (c *CouchbaseBucketConfig) HasPrimaryPartitionsOnNode(hostname string) bool {
	_, ok := c.primaryHostnames[hostname]
	return ok
}
