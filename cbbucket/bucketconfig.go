/*
Copyright 2026-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

// Package cbbucket models the topology of a single bucket as distributed
// by the cluster manager.  A config is parsed once from a terse config
// document into an immutable snapshot which can then be queried from any
// number of goroutines without synchronization.  New documents always
// produce new snapshots, the previous one stays valid for any lookups
// still in flight against it.
package cbbucket

import (
	"github.com/couchbaselabs/cbrouting/cbconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrInvalidConfig indicates the config document was malformed or
	// internally inconsistent and no model could be built from it.  The
	// caller should keep routing against its previous config.
	ErrInvalidConfig = errors.New("invalid bucket config")

	// ErrNoFastForwardMap indicates a fast-forward lookup was requested
	// against a config that does not carry a fast-forward map.
	ErrNoFastForwardMap = errors.New("no fast-forward map in this config")
)

type BucketType string

const (
	BucketTypeCouchbase BucketType = "couchbase"
	BucketTypeMemcached BucketType = "memcached"
)

// node locator names as they appear in config documents
const (
	locatorVbucket = "vbucket"
	locatorKetama  = "ketama"
)

// BucketConfig is the kind-independent surface of a bucket topology
// snapshot.  Routing callers switch on BucketType to reach the
// kind-specific lookup methods.
type BucketConfig interface {
	Name() string
	UUID() string
	URI() string
	StreamingURI() string
	Rev() uint64
	RevEpoch() uint64
	Revision() []uint64
	BucketType() BucketType
	Nodes() []NodeReference
}

// bucketConfigBase carries the fields every bucket kind shares.
type bucketConfigBase struct {
	name         string
	uuid         string
	uri          string
	streamingURI string
	rev          uint64
	revEpoch     uint64
	nodes        []NodeReference
}

func newBucketConfigBase(config *cbconfig.TerseConfigJson) bucketConfigBase {
	return bucketConfigBase{
		name:         config.Name,
		uuid:         config.UUID,
		uri:          config.URI,
		streamingURI: config.StreamingURI,
		rev:          uint64(config.Rev),
		revEpoch:     uint64(config.RevEpoch),
		nodes:        nodesFromTerse(config),
	}
}

func (c *bucketConfigBase) Name() string         { return c.name }
func (c *bucketConfigBase) UUID() string         { return c.uuid }
func (c *bucketConfigBase) URI() string          { return c.uri }
func (c *bucketConfigBase) StreamingURI() string { return c.streamingURI }
func (c *bucketConfigBase) Rev() uint64          { return c.rev }
func (c *bucketConfigBase) RevEpoch() uint64     { return c.revEpoch }

// Revision returns the config revision in array form, with the epoch as
// the most significant element, suitable for revisionarr comparison.
func (c *bucketConfigBase) Revision() []uint64 {
	return []uint64{c.rev, c.revEpoch}
}

func (c *bucketConfigBase) Nodes() []NodeReference { return c.nodes }

type ParseOptions struct {
	Logger *zap.Logger
}

// ParseTerseConfig builds the topology model matching the node locator the
// document names.  Documents without a locator are treated as vbucket
// buckets, matching what older servers send.
func ParseTerseConfig(config *cbconfig.TerseConfigJson, opts ParseOptions) (BucketConfig, error) {
	var bucketConfig BucketConfig
	var err error
	switch config.NodeLocator {
	case locatorVbucket, "":
		bucketConfig, err = NewCouchbaseBucketConfig(config, CouchbaseBucketConfigOptions{
			Logger: opts.Logger,
		})
	case locatorKetama:
		bucketConfig, err = NewMemcachedBucketConfig(config, MemcachedBucketConfigOptions{
			Logger: opts.Logger,
		})
	default:
		err = errors.Wrapf(ErrInvalidConfig, "unknown node locator %q", config.NodeLocator)
	}

	if err != nil {
		configParseFailures.Inc()
		return nil, err
	}

	return bucketConfig, nil
}
