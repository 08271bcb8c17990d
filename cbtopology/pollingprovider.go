/*
Copyright 2026-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

package cbtopology

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchbaselabs/cbrouting/cbbucket"
	"github.com/couchbaselabs/cbrouting/cbconfig"
	"github.com/couchbaselabs/cbrouting/utils/latestonlychannel"
	"github.com/couchbaselabs/cbrouting/utils/revisionarr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPollInterval = 2500 * time.Millisecond

type PollingProviderOptions struct {
	Fetcher      *cbconfig.Fetcher
	Logger       *zap.Logger
	PollInterval time.Duration
}

// PollingProvider implements Provider by periodically refetching the terse
// bucket config over the management interface.  Configs whose revision is
// not strictly newer than the last published one are discarded, so
// consumers never observe the topology moving backwards.
type PollingProvider struct {
	fetcher      *cbconfig.Fetcher
	logger       *zap.Logger
	pollInterval time.Duration
}

var _ Provider = (*PollingProvider)(nil)

func NewPollingProvider(opts PollingProviderOptions) (*PollingProvider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}

	return &PollingProvider{
		fetcher:      opts.Fetcher,
		logger:       logger,
		pollInterval: pollInterval,
	}, nil
}

func (p *PollingProvider) fetchBucketConfig(
	ctx context.Context,
	bucketName string,
) (cbbucket.BucketConfig, error) {
	config, err := p.fetcher.FetchTerseBucket(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	return cbbucket.ParseTerseConfig(config, cbbucket.ParseOptions{
		Logger: p.logger,
	})
}

func (p *PollingProvider) WatchBucket(
	ctx context.Context,
	bucketName string,
) (<-chan cbbucket.BucketConfig, error) {
	logger := p.logger.With(
		zap.String("bucket", bucketName),
		zap.String("watchId", uuid.NewString()))

	// fetch the first config synchronously so the caller starts with a
	// usable topology or a hard error
	bucketConfig, err := p.fetchBucketConfig(ctx, bucketName)
	if err != nil {
		return nil, err
	}

	// buffered so the initial config is held until the consumer reads it
	inputCh := make(chan cbbucket.BucketConfig, 1)
	outputCh := latestonlychannel.Wrap(inputCh)
	inputCh <- bucketConfig

	lastConfig := bucketConfig

	go func() {
		defer close(inputCh)

		retryBackoff := backoff.NewExponentialBackOff()
		retryBackoff.MaxElapsedTime = 0

		for {
			select {
			case <-time.After(p.pollInterval):
			case <-ctx.Done():
				return
			}

			bucketConfig, err := p.fetchBucketConfig(ctx, bucketName)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				waitTime := retryBackoff.NextBackOff()
				logger.Warn("failed to fetch bucket config, backing off",
					zap.Error(err),
					zap.Duration("waitTime", waitTime))

				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return
				}
				continue
			}
			retryBackoff.Reset()

			// only publish configs that move the revision forwards, the
			// cluster can legitimately serve us an older config if we poll
			// a node that has not caught up yet
			if revisionarr.Newer(bucketConfig.Revision(), lastConfig.Revision()) {
				logger.Debug("publishing newer bucket config",
					zap.Uint64s("revision", bucketConfig.Revision()))

				inputCh <- bucketConfig
				lastConfig = bucketConfig
			}
		}
	}()

	return outputCh, nil
}
