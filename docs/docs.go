// Package docs Fresh Fold Laundry API.
//
// Documentation of the Fresh Fold Laundry API identity endpoints.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//     Host: https://laundry-api.herokuapp.com
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
//     Security:
//     - bearer
//
//    SecurityDefinitions:
//    bearer:
//      type: apiKey
//      name: Authorization
//      in: header
//
// swagger:meta
package docs

import (
	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route POST /api/v1/auth/verify-code auth verifyCode
// Confirms an emailed code and creates the account.
// responses:
//   201: sessionResponse
//   400: errorResponse
//   409: errorResponse
//   410: errorResponse
//   429: errorResponse

// swagger:route POST /api/v1/auth/register auth register
// Creates an account without a code when verification is not required.
// responses:
//   201: sessionResponse
//   400: errorResponse
//   409: errorResponse

// swagger:route POST /api/v1/auth/login auth login
// Exchanges an email and password for a bearer token.
// responses:
//   200: sessionResponse
//   401: errorResponse

// swagger:parameters verifyCode register
type accountFieldsWrapper struct {
	// in:body
	Body identity.AccountFields
}

// A bearer token and the account it belongs to
// swagger:response sessionResponse
type sessionResponseWrapper struct {
	// in:body
	Body identity.Session
}

// swagger:route GET /api/v1/user/me user me
// Gets the account behind the bearer token.
// responses:
//   200: profileResponse
//   401: errorResponse

// swagger:response profileResponse
type profileResponseWrapper struct {
	// in:body
	Body models.PublicUser
}

// swagger:route POST /api/v1/auth/check-email auth checkEmail
// Reports whether an email can still be registered.
// responses:
//   200: messageResponse
//   400: errorResponse

// swagger:route POST /api/v1/auth/request-code auth requestCode
// Emails a six digit verification code, replacing any earlier one.
// responses:
//   200: messageResponse
//   409: errorResponse

// swagger:route POST /api/v1/auth/forgot-password auth forgotPassword
// Emails a password reset token.
// responses:
//   200: messageResponse
//   404: errorResponse

// swagger:route POST /api/v1/auth/reset-password auth resetPassword
// Sets a new password with a reset token.
// responses:
//   200: messageResponse
//   400: errorResponse

// swagger:response messageResponse
type messageResponseWrapper struct {
	// in:body
	Body models.MessageResponse
}

// Every failure carries success false, a message and usually a machine readable code
// swagger:response errorResponse
type errorResponseWrapper struct {
	// in:body
	Body models.ErrorResponse
}
