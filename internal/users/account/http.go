// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/taibuivan/otpgate/internal/platform/request"
	"github.com/taibuivan/otpgate/internal/platform/respond"
)

// Handler implements the HTTP layer for the authenticated profile.
//
// Every route requires the RequireAuth middleware upstream.
type Handler struct {
	accountService *Service
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{accountService: service}
}

// Register attaches the profile endpoints to an existing router.
func (handler *Handler) Register(router chi.Router) {
	router.Get("/me", handler.getMe)
	router.Patch("/me", handler.updateMe)
}

/*
GET /api/v1/auth/me.

Description: Retrieves the profile of the authenticated account.

Response:
  - 200: Account
  - 401: Authentication required
  - 404: ACCOUNT_NOT_FOUND
*/
func (handler *Handler) getMe(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.accountService.GetProfile(request.Context(), accountID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}

// updateMeRequest is the PATCH /me payload. Omitted or blank fields stay as they are.
type updateMeRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

/*
PATCH /api/v1/auth/me.

Description: Updates the display name, email or phone of the authenticated
account.

Request:
  - body: updateMeRequest

Response:
  - 200: Account
  - 400: Validation error
  - 401: Authentication required
  - 409: CONFLICT when the email or phone belongs to another account
*/
func (handler *Handler) updateMe(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateMeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.accountService.UpdateProfile(request.Context(), accountID, ProfileUpdate{
		Name:  input.Name,
		Email: input.Email,
		Phone: input.Phone,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}
