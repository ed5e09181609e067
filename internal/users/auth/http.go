// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/otpgate/internal/platform/ctxutil"
	"github.com/taibuivan/otpgate/internal/platform/middleware"
	requestutil "github.com/taibuivan/otpgate/internal/platform/request"
	"github.com/taibuivan/otpgate/internal/platform/respond"
	"github.com/taibuivan/otpgate/internal/platform/validate"
	"github.com/taibuivan/otpgate/internal/users/identifier"
)

// # Definitions & Constructors

// Handler implements the authentication HTTP endpoints.
//
// It is a thin mediation layer: decode, validate, call [Service], render.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Register attaches the auth endpoints to an existing router.
//
// # Endpoints
//   - POST /request-otp, /verify-otp, /register, /login, /refresh : public
//   - POST /logout, /check-user : require an access token
func (handler *Handler) Register(router chi.Router) {

	// Public endpoints
	router.Post("/request-otp", handler.requestOTP)
	router.Post("/verify-otp", handler.verifyOTP)
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Post("/check-user", handler.checkUser)
	})
}

// RegisterAdmin attaches the administrator endpoints. The router must enforce
// the admin role.
func (handler *Handler) RegisterAdmin(router chi.Router) {
	router.Post("/revoke", handler.forceRevoke)
}

// # Request Payloads

type requestOTPRequest struct {
	Identifier string `json:"identifier"`
}

type verifyOTPRequest struct {
	Identifier string `json:"identifier"`
	OTPCode    string `json:"otp_code"`
	Name       string `json:"name"`
}

type registerRequest struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Password   string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forceRevokeRequest struct {
	Token string `json:"token"`
}

// # Response Payloads

type otpDispatchResponse struct {
	Message        string          `json:"message"`
	IdentifierType identifier.Kind `json:"identifier_type"`
	ExpiresIn      int             `json:"expires_in"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	IsNewUser    bool   `json:"is_new_user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newTokenPairResponse(session *Session, now time.Time) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    TokenType,
		ExpiresIn:    int(session.AccessExpiresAt.Sub(now).Seconds()),
		IsNewUser:    session.IsNewUser,
	}
}

// # Passcode Endpoints

/*
POST /api/v1/auth/request-otp.

Description: Sends a one-time passcode to an email or phone.

Request:
  - body: requestOTPRequest

Response:
  - 200: otpDispatchResponse
  - 400: Validation error
  - 502: DELIVERY_FAILED
*/
func (handler *Handler) requestOTP(writer http.ResponseWriter, request *http.Request) {
	var input requestOTPRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	dispatch, err := handler.authService.RequestOTP(request.Context(), input.Identifier)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, otpDispatchResponse{
		Message:        "OTP sent to your " + dispatch.Kind.ChannelName(),
		IdentifierType: dispatch.Kind,
		ExpiresIn:      int(dispatch.TTL.Seconds()),
	})
}

/*
POST /api/v1/auth/verify-otp.

Description: Verifies a passcode and returns a token pair. New users must
send a name.

Request:
  - body: verifyOTPRequest

Response:
  - 200: tokenPairResponse
  - 400: Validation error
  - 401: INVALID_CREDENTIALS
  - 404: ACCOUNT_NOT_FOUND
*/
func (handler *Handler) verifyOTP(writer http.ResponseWriter, request *http.Request) {
	var input verifyOTPRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier).
		Required(FieldOTPCode, input.OTPCode).
		MaxLen(FieldName, input.Name, NameMaxLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.VerifyOTP(request.Context(), VerifyInput{
		Identifier: input.Identifier,
		Code:       input.OTPCode,
		Name:       input.Name,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, newTokenPairResponse(session, handler.authService.now()))
}

// # Password Endpoints

/*
POST /api/v1/auth/register.

Description: Creates a password account.

Request:
  - body: registerRequest

Response:
  - 201: account.Account
  - 400: Validation error
  - 409: ALREADY_REGISTERED
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier).
		Required(FieldName, input.Name).
		MaxLen(FieldName, input.Name, NameMaxLength).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, PasswordMinLength).
		MaxLen(FieldPassword, input.Password, PasswordMaxLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	acct, err := handler.authService.Register(request.Context(), RegisterInput{
		Identifier: input.Identifier,
		Name:       input.Name,
		Password:   input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, acct)
}

/*
POST /api/v1/auth/login.

Description: Exchanges an identifier and password for a token pair.

Request:
  - body: loginRequest

Response:
  - 200: tokenPairResponse
  - 401: INVALID_CREDENTIALS
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier).
		Required(FieldPassword, input.Password).
		MaxLen(FieldPassword, input.Password, PasswordMaxLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), input.Identifier, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, newTokenPairResponse(session, handler.authService.now()))
}

// # Token Endpoints

/*
POST /api/v1/auth/refresh.

Description: Exchanges a refresh token for a new access token.

Request:
  - body: refreshRequest

Response:
  - 200: tokenPairResponse
  - 401: TOKEN_EXPIRED, TOKEN_INVALID or TOKEN_REVOKED
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldRefreshToken, input.RefreshToken)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Refresh(request.Context(), input.RefreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, newTokenPairResponse(session, handler.authService.now()))
}

/*
POST /api/v1/auth/logout.

Description: Revokes the bearer access token and the optional refresh token.

Request:
  - header: Authorization: Bearer <access token>
  - body: logoutRequest (optional)

Response:
  - 200: messageResponse
  - 401: Authentication required
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input logoutRequest
	if request.ContentLength > 0 {
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}
	}

	accessToken := ctxutil.GetAccessToken(request.Context())
	if err := handler.authService.Logout(request.Context(), claims, accessToken, input.RefreshToken); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, messageResponse{Message: "Logged out successfully"})
}

/*
POST /api/v1/auth/check-user.

Description: Confirms the bearer token is live.

Response:
  - 200: messageResponse
  - 401: Authentication required
*/
func (handler *Handler) checkUser(writer http.ResponseWriter, request *http.Request) {
	if _, err := requestutil.RequiredClaims(request); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, messageResponse{Message: "User is authenticated"})
}

// # Admin Endpoints

/*
POST /api/v1/auth/admin/revoke.

Description: Revokes any access or refresh token on an administrator's
behalf.

Request:
  - body: forceRevokeRequest

Response:
  - 204: Revoked, or already expired
  - 400: Validation error
  - 401: TOKEN_INVALID
  - 403: Insufficient permissions
*/
func (handler *Handler) forceRevoke(writer http.ResponseWriter, request *http.Request) {
	var input forceRevokeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required("token", input.Token)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ForceRevoke(request.Context(), input.Token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
