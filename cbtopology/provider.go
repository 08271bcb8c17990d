/*
Copyright 2026-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

// Package cbtopology watches a bucket's topology and yields a new
// immutable config snapshot whenever the cluster distributes a newer
// revision.
package cbtopology

import (
	"context"

	"github.com/couchbaselabs/cbrouting/cbbucket"
)

type Provider interface {
	WatchBucket(ctx context.Context, bucketName string) (<-chan cbbucket.BucketConfig, error)
}
