// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package respond writes every HTTP body the identity API produces.

Two shapes leave the service:

	{"data": ...}                               on success
	{"error": "...", "code": "...", "details"}  on failure

Clients branch on code. The message is for humans and may change.
*/
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taibuivan/otpgate/internal/platform/apperr"
	"github.com/taibuivan/otpgate/internal/platform/ctxkey"
)

// SuccessEnvelope wraps a successful payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// JSON encodes payload with status. Credentials pass through these bodies,
// so nothing is cacheable.
func JSON(writer http.ResponseWriter, status int, payload any) {
	header := writer.Header()
	header.Set("Content-Type", "application/json; charset=utf-8")
	header.Set("Cache-Control", "no-store")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes 200 with the success envelope.
func OK(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Data: data})
}

// Created writes 201 with the success envelope.
func Created(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusCreated, SuccessEnvelope{Data: data})
}

// NoContent writes a bare 204.
func NoContent(writer http.ResponseWriter) {
	writer.Header().Set("Cache-Control", "no-store")
	writer.WriteHeader(http.StatusNoContent)
}

/*
Error renders err as an ErrorEnvelope.

Anything that is not an [*apperr.AppError] becomes INTERNAL_ERROR and its
text stays in the log. Every 5xx is logged with its cause.

Parameters:
  - writer: http.ResponseWriter
  - request: *http.Request (source of the request logger and id)
  - err: error
*/
func Error(writer http.ResponseWriter, request *http.Request, err error) {
	logger, requestID := requestScope(request)

	var appError *apperr.AppError
	if !errors.As(err, &appError) {
		logger.ErrorContext(request.Context(), "unmapped_error",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID),
		)
		appError = apperr.Internal(err)
	}

	if appError.HTTPStatus >= http.StatusInternalServerError {
		logger.ErrorContext(request.Context(), "server_error_response",
			slog.String("code", appError.Code),
			slog.String("request_id", requestID),
			slog.Any("cause", appError.Cause),
		)
	}

	JSON(writer, appError.HTTPStatus, ErrorEnvelope{
		Error:   appError.Message,
		Code:    appError.Code,
		Details: appError.Details,
	})
}

// requestScope reads the logger and request id the middleware chain stored.
func requestScope(request *http.Request) (*slog.Logger, string) {
	ctx := request.Context()

	logger, _ := ctx.Value(ctxkey.KeyLogger).(*slog.Logger)
	if logger == nil {
		logger = slog.Default()
	}
	requestID, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return logger, requestID
}
