// Copyright 2025 OpenIAP ApS (https://openiap.io)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

package openiap

import (
	"github.com/posthog/posthog-go"
	"go.uber.org/zap"
)

const defaultAnalyticsEndpoint = "https://us.i.posthog.com"

// analytics sends anonymous usage events for one client. A nil *analytics
// is valid and does nothing.
type analytics struct {
	client     posthog.Client
	distinctID string
}

// newAnalytics returns nil unless cfg carries an analytics key.
func newAnalytics(cfg *Config, distinctID string, log *zap.Logger) *analytics {
	if cfg.AnalyticsKey == "" {
		return nil
	}
	endpoint := cfg.AnalyticsEndpoint
	if endpoint == "" {
		endpoint = defaultAnalyticsEndpoint
	}
	client, err := posthog.NewWithConfig(cfg.AnalyticsKey, posthog.Config{Endpoint: endpoint})
	if err != nil {
		log.Debug("analytics disabled", zap.Error(err))
		return nil
	}
	return &analytics{client: client, distinctID: distinctID}
}

// track enqueues an event with static SDK metadata only.
func (a *analytics) track(event string, properties map[string]interface{}) {
	if a == nil {
		return
	}
	if properties == nil {
		properties = make(map[string]interface{})
	}
	properties["sdk_version"] = Version
	properties["sdk_language"] = "go"

	_ = a.client.Enqueue(posthog.Capture{
		DistinctId: a.distinctID,
		Event:      event,
		Properties: properties,
	})
}

func (a *analytics) trackConnected() {
	a.track("client_connected", nil)
}

func (a *analytics) trackError(errorType, location string) {
	a.track(errorType, map[string]interface{}{
		"error_type": errorType,
		"location":   location,
	})
}

func (a *analytics) close() {
	if a == nil {
		return
	}
	_ = a.client.Close()
}
