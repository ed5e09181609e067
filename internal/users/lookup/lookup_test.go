// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package lookup_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/sec"
	"github.com/taibuivan/otpgate/internal/users/account"
	"github.com/taibuivan/otpgate/internal/users/account/accounttest"
	"github.com/taibuivan/otpgate/internal/users/lookup"
	"github.com/taibuivan/otpgate/pkg/pointer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seeded returns a directory holding one complete and one pending account.
func seeded() (*accounttest.Directory, string) {
	directory := accounttest.NewDirectory()
	id := directory.Add(account.Account{
		Email: pointer.To("ada@example.com"),
		Phone: pointer.To("15551234567"),
		Name:  "Ada",
		Role:  sec.RoleUser,
		State: account.StateComplete,
	})
	directory.Add(account.Account{Email: pointer.To("pending@example.com"), State: account.StatePending})
	return directory, id
}

/*
TestService_Lookup resolves both identifier kinds and hides pending accounts.
*/
func TestService_Lookup(t *testing.T) {
	directory, id := seeded()
	service := lookup.NewService(directory, discardLogger())
	ctx := context.Background()

	data, err := service.Lookup(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, data.UserID)
	assert.Equal(t, "Ada", data.Name)
	assert.Equal(t, "user", data.Role)

	data, err = service.Lookup(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, id, data.UserID)
	assert.Equal(t, "15551234567", pointer.Val(data.PhoneNumber))

	_, err = service.Lookup(ctx, "pending@example.com")
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)

	_, err = service.Lookup(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
}

/*
TestService_Handle carries every outcome inside the response.
*/
func TestService_Handle(t *testing.T) {
	directory, id := seeded()
	service := lookup.NewService(directory, discardLogger())
	ctx := context.Background()

	response := service.Handle(ctx, lookup.Request{RequestID: "req-1", PhoneOrEmail: "ada@example.com"})
	assert.True(t, response.Success)
	assert.Equal(t, "req-1", response.RequestID)
	require.NotNil(t, response.UserData)
	assert.Equal(t, id, response.UserData.UserID)
	assert.False(t, response.Timestamp.IsZero())

	response = service.Handle(ctx, lookup.Request{RequestID: "req-2", PhoneOrEmail: "nobody@example.com"})
	assert.False(t, response.Success)
	assert.Nil(t, response.UserData)
	assert.Equal(t, "User not found: nobody@example.com", response.ErrorMessage)

	response = service.Handle(ctx, lookup.Request{RequestID: "req-3", PhoneOrEmail: "???"})
	assert.False(t, response.Success)
	assert.Equal(t, "User not found: ???", response.ErrorMessage)

	directory.Err = errors.New("connection refused")
	response = service.Handle(ctx, lookup.Request{RequestID: "req-4", PhoneOrEmail: "ada@example.com"})
	assert.False(t, response.Success)
	assert.NotContains(t, response.ErrorMessage, "connection refused")
}

func newResponder(t *testing.T) (*lookup.Responder, *redis.Client, string) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	directory, id := seeded()
	responder := lookup.NewResponder(client, lookup.NewService(directory, discardLogger()), "test-consumer", discardLogger())
	require.NoError(t, responder.Setup(context.Background()))
	return responder, client, id
}

func publish(t *testing.T, client *redis.Client, payload string) {
	t.Helper()
	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: lookup.RequestStream,
		Values: map[string]any{"payload": payload},
	}).Err())
}

/*
TestResponder_Poll answers queued requests on the response stream.

Steps:
 1. Queue a lookup for a known email and one for an unknown phone.
 2. Poll handles both.
 3. Each answer carries its correlation id and the requests are acknowledged.
*/
func TestResponder_Poll(t *testing.T) {
	responder, client, id := newResponder(t)
	ctx := context.Background()

	// 1. Queue
	publish(t, client, `{"request_id":"req-1","phone_or_email":"ada@example.com","timestamp":"2026-01-01T00:00:00Z"}`)
	publish(t, client, `{"request_id":"req-2","phone_or_email":"15550000000"}`)

	// 2. Poll
	handled, err := responder.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, handled)

	// 3. Answers
	entries, err := client.XRange(ctx, lookup.ResponseStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var first lookup.Response
	assert.Equal(t, "req-1", entries[0].Values["correlation_id"])
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &first))
	assert.True(t, first.Success)
	assert.Equal(t, id, first.UserData.UserID)

	var second lookup.Response
	require.NoError(t, json.Unmarshal([]byte(entries[1].Values["payload"].(string)), &second))
	assert.False(t, second.Success)
	assert.Equal(t, "User not found: 15550000000", second.ErrorMessage)

	pending, err := client.XPending(ctx, lookup.RequestStream, lookup.ConsumerGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	// Nothing left to read
	handled, err = responder.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, handled)
}

/*
TestResponder_DropsUndecodable acknowledges garbage without answering it.
*/
func TestResponder_DropsUndecodable(t *testing.T) {
	responder, client, _ := newResponder(t)
	ctx := context.Background()

	publish(t, client, `not json`)

	handled, err := responder.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	length, err := client.XLen(ctx, lookup.ResponseStream).Result()
	require.NoError(t, err)
	assert.Zero(t, length)

	pending, err := client.XPending(ctx, lookup.RequestStream, lookup.ConsumerGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

/*
TestResponder_SetupIsIdempotent tolerates an existing consumer group.
*/
func TestResponder_SetupIsIdempotent(t *testing.T) {
	responder, _, _ := newResponder(t)
	assert.NoError(t, responder.Setup(context.Background()))
}

/*
TestResponder_RunStopsOnCancel returns once the context is cancelled.
*/
func TestResponder_RunStopsOnCancel(t *testing.T) {
	responder, _, _ := newResponder(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- responder.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(7 * time.Second):
		t.Fatal("responder did not stop")
	}
}

/*
TestHandler_GetAccount serves the admin lookup route.
*/
func TestHandler_GetAccount(t *testing.T) {
	directory, id := seeded()
	router := chi.NewRouter()
	lookup.NewHandler(lookup.NewService(directory, discardLogger())).Register(router)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/accounts/ada@example.com", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope struct {
		Data lookup.UserData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, id, envelope.Data.UserID)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/accounts/pending@example.com", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
