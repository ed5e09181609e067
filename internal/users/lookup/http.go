// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package lookup

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/taibuivan/otpgate/internal/platform/request"
	"github.com/taibuivan/otpgate/internal/platform/respond"
)

// Handler exposes lookups to administrators. The router mounting it must
// enforce the admin role.
type Handler struct {
	lookupService *Service
}

// NewHandler constructs a lookup [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{lookupService: service}
}

// Register attaches the lookup route to an existing router.
func (handler *Handler) Register(router chi.Router) {
	router.Get("/accounts/{identifier}", handler.getAccount)
}

/*
GET /api/v1/auth/admin/accounts/{identifier}.

Description: Resolves an email or phone to its complete account.

Response:
  - 200: UserData
  - 400: Validation error
  - 403: Insufficient permissions
  - 404: ACCOUNT_NOT_FOUND
*/
func (handler *Handler) getAccount(writer http.ResponseWriter, request *http.Request) {
	data, err := handler.lookupService.Lookup(request.Context(), requestutil.Param(request, "identifier"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, data)
}
