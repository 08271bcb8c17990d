/*
Copyright 2026-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

package cbconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

type FetcherOptions struct {
	HttpClient *http.Client
	Host       string
	Username   string
	Password   string
	Logger     *zap.Logger
}

// Fetcher retrieves terse bucket configs from a single cluster node over
// the management REST interface.
type Fetcher struct {
	httpClient *http.Client
	host       string
	username   string
	password   string
	logger     *zap.Logger
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	httpClient := opts.HttpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		httpClient: httpClient,
		host:       opts.Host,
		username:   opts.Username,
		password:   opts.Password,
		logger:     logger,
	}
}

// used to derive the hostname to use for $HOST replacement
func (f *Fetcher) deriveHostname() string {
	u, err := url.Parse(f.host)
	if err != nil {
		return f.host
	}

	return u.Hostname()
}

func (f *Fetcher) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	url := f.host + path

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}

	if f.username != "" || f.password != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	return req, nil
}

func (f *Fetcher) doGetJson(ctx context.Context, path string, data any) error {
	req, err := f.newRequest(ctx, "GET", path)
	if err != nil {
		return err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return fmt.Errorf("unexpected status code %d fetching %s", resp.StatusCode, path)
	}

	decoder := json.NewDecoder(resp.Body)

	err = decoder.Decode(data)
	if err != nil {
		_ = resp.Body.Close()
		return err
	}

	err = resp.Body.Close()
	if err != nil {
		f.logger.Error("unexpected close error", zap.Error(err))
	}

	return nil
}

func (f *Fetcher) doGetJsonConfig(ctx context.Context, path string, data any) error {
	// we use an intermediary so that we can replace $HOST, which the server
	// sends in place of its own address in single-node configs
	var configBytes json.RawMessage
	err := f.doGetJson(ctx, path, &configBytes)
	if err != nil {
		return err
	}

	hostname := f.deriveHostname()
	configBytes = bytes.ReplaceAll(configBytes, []byte("$HOST"), []byte(hostname))

	err = json.Unmarshal(configBytes, data)
	if err != nil {
		return err
	}

	return nil
}

func (f *Fetcher) FetchTerseBucket(ctx context.Context, bucketName string) (*TerseConfigJson, error) {
	var config TerseConfigJson
	err := f.doGetJsonConfig(ctx, fmt.Sprintf("/pools/default/b/%s", bucketName), &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
