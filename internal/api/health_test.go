// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/otpgate/internal/api"
	"github.com/taibuivan/otpgate/internal/platform/redis"
)

/*
TestReadiness reports each dependency and degrades when one fails.
*/
func TestReadiness(t *testing.T) {
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		database func(context.Context) error
		status   int
		state    string
	}{
		{"all_ready", func(context.Context) error { return nil }, http.StatusOK, "ready"},
		{"postgres_down", func(context.Context) error { return errors.New("connection refused") }, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, readiness := api.NewHealthHandlers(api.HealthDependencies{
				CheckDatabase: tt.database,
				CheckCache: func(ctx context.Context) error {
					return redis.Ping(ctx, client)
				},
			}, logger)

			recorder := httptest.NewRecorder()
			readiness(recorder, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.status, recorder.Code)

			var body struct {
				Data struct {
					Status string `json:"status"`
					Checks []struct {
						Name string `json:"name"`
						OK   bool   `json:"ok"`
					} `json:"checks"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
			assert.Equal(t, tt.state, body.Data.Status)
			require.Len(t, body.Data.Checks, 2)
			assert.Equal(t, "redis", body.Data.Checks[1].Name)
			assert.True(t, body.Data.Checks[1].OK)
		})
	}
}

/*
TestLiveness always answers 200.
*/
func TestLiveness(t *testing.T) {
	liveness, _ := api.NewHealthHandlers(api.HealthDependencies{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	recorder := httptest.NewRecorder()
	liveness(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
}
