package handlers

import (
	"net/http"
	"time"

	"github.com/linesmerrill/laundry-api/api"
	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

// Registration handles the sign up requests
type Registration struct {
	Flow *identity.RegistrationFlow
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	identity.AccountFields
	Code string `json:"code"`
}

type availabilityResponse struct {
	Success   bool `json:"success"`
	Available bool `json:"available"`
}

type codeIssuedResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
	Code      string    `json:"code,omitempty"`
}

type sessionResponse struct {
	Success bool `json:"success"`
	*identity.Session
}

// CheckEmailHandler reports whether an email can still be used to sign up
func (reg Registration) CheckEmailHandler(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	available, err := reg.Flow.CheckAvailability(ctx, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Success: true, Available: available})
}

// RequestCodeHandler issues a verification code. It also serves resend, a
// new code always replaces the previous one.
func (reg Registration) RequestCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issue, err := reg.Flow.RequestCode(ctx, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codeIssuedResponse{
		Success:   true,
		Message:   "verification code sent",
		Email:     issue.Email,
		ExpiresAt: issue.ExpiresAt,
		Code:      issue.Code,
	})
}

// VerifyCodeHandler redeems a code and creates the account
func (reg Registration) VerifyCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	session, err := reg.Flow.ConfirmAndCreate(ctx, req.Email, req.Code, req.AccountFields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Success: true, Session: session})
}

// RegisterHandler creates an account without a code when verification is off
func (reg Registration) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if reg.Flow.VerificationRequired() {
		writeError(w, r, identity.ErrVerificationRequired)
		return
	}

	var req identity.AccountFields
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	session, err := reg.Flow.Register(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Success: true, Session: session})
}

func message(msg string) models.MessageResponse {
	return models.MessageResponse{Success: true, Message: msg}
}
