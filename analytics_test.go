// Copyright 2025 OpenIAP ApS (https://openiap.io)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package openiap

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAnalyticsDisabledWithoutKey(t *testing.T) {
	a := newAnalytics(DefaultConfig(), "client-1", zap.NewNop())
	assert.Nil(t, a)

	// A nil tracker accepts every call.
	a.trackConnected()
	a.trackError("connection_error", "connect")
	a.close()
}

func TestAnalyticsSendsEvents(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.AnalyticsKey = "phc_test"
	cfg.AnalyticsEndpoint = srv.URL
	a := newAnalytics(cfg, "client-1", zap.NewNop())
	require.NotNil(t, a)

	a.trackConnected()
	a.trackError("connection_error", "connect")
	a.close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, paths)
	assert.True(t, strings.Contains(paths[0], "batch"), "posted to %s", paths[0])
}
