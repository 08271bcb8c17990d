/*
Copyright 2026-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

// Package routing holds the currently installed bucket topology and
// resolves keys to the nodes that own them.  The installed config is
// swapped atomically, readers always observe either the fully-old or the
// fully-new topology and never need to take a lock.
package routing

import (
	"hash/crc32"
	"sync/atomic"

	"github.com/couchbaselabs/cbrouting/cbbucket"
	"github.com/couchbaselabs/cbrouting/utils/revisionarr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrNoConfig indicates no topology has been installed yet.
	ErrNoConfig = errors.New("no bucket config has been applied")

	// ErrNoOwner indicates the partition the key maps to currently has no
	// node assigned at the requested replica position.
	ErrNoOwner = errors.New("partition has no owner assigned")

	// ErrInvalidReplica indicates the requested replica position does not
	// exist in the installed config at all.
	ErrInvalidReplica = errors.New("replica position does not exist in this config")
)

type RouterOptions struct {
	Logger *zap.Logger
}

// Router routes keys against the most recent vbucket bucket config it has
// accepted.  Stale configs are rejected so independently arriving
// documents can be applied from any call site in any order.
type Router struct {
	logger *zap.Logger
	config atomic.Pointer[cbbucket.CouchbaseBucketConfig]
}

func NewRouter(opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Router{
		logger: logger,
	}
}

// ApplyConfig installs the config if its revision is strictly newer than
// the currently installed one and reports whether it was installed.
// Lookups in flight against the previous config stay valid, the old
// snapshot is never mutated.
func (r *Router) ApplyConfig(config *cbbucket.CouchbaseBucketConfig) bool {
	for {
		oldConfig := r.config.Load()
		if oldConfig != nil &&
			!revisionarr.Newer(config.Revision(), oldConfig.Revision()) {
			configsRejected.Inc()
			r.logger.Debug("rejecting stale bucket config",
				zap.Uint64s("revision", config.Revision()),
				zap.Uint64s("currentRevision", oldConfig.Revision()))
			return false
		}

		if r.config.CompareAndSwap(oldConfig, config) {
			configsApplied.Inc()
			r.logger.Info("applied bucket config",
				zap.Uint64s("revision", config.Revision()),
				zap.Int("numPartitions", config.NumPartitions()),
				zap.Bool("tainted", config.Tainted()))
			return true
		}
	}
}

// Config returns the currently installed config, or nil when none has
// been applied yet.
func (r *Router) Config() *cbbucket.CouchbaseBucketConfig {
	return r.config.Load()
}

// VbucketIDForKey maps a document key onto a vbucket using the standard
// CRC32 vbucket hash.
func VbucketIDForKey(key []byte, numVbuckets int) int {
	crc := crc32.ChecksumIEEE(key)
	return int((crc>>16)&0x7fff) % numVbuckets
}

// NodeForKey resolves the node that owns the given key at the given
// replica position, with position 0 meaning the master.  When
// useFastForward is set the lookup runs against the fast-forward map
// instead of the current map.
func (r *Router) NodeForKey(key []byte, replica int, useFastForward bool) (cbbucket.NodeReference, error) {
	config := r.config.Load()
	if config == nil {
		return cbbucket.NodeReference{}, ErrNoConfig
	}

	vbID := VbucketIDForKey(key, config.NumPartitions())

	var nodeIndex int
	var err error
	if replica == 0 {
		nodeIndex, err = config.NodeIndexForMaster(vbID, useFastForward)
	} else {
		nodeIndex, err = config.NodeIndexForReplica(vbID, replica-1, useFastForward)
	}
	if err != nil {
		return cbbucket.NodeReference{}, err
	}

	if nodeIndex == cbbucket.PartitionNotExistent {
		return cbbucket.NodeReference{}, errors.Wrapf(ErrInvalidReplica,
			"vbucket %d replica %d", vbID, replica)
	}
	if nodeIndex < 0 {
		return cbbucket.NodeReference{}, errors.Wrapf(ErrNoOwner,
			"vbucket %d replica %d", vbID, replica)
	}

	return config.NodeAtIndex(nodeIndex), nil
}
