package handlers

import (
	"net/http"
	"time"

	"github.com/linesmerrill/laundry-api/api"
	"github.com/linesmerrill/laundry-api/identity"
)

// PasswordRecovery handles forgotten password requests
type PasswordRecovery struct {
	Flow *identity.PasswordRecoveryFlow
}

type resetIssuedResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
	Token     string    `json:"token,omitempty"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ForgotPasswordHandler issues a reset token for an existing account
func (p PasswordRecovery) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issue, err := p.Flow.RequestReset(ctx, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetIssuedResponse{
		Success:   true,
		Message:   "password reset link sent",
		ExpiresAt: issue.ExpiresAt,
		Token:     issue.Token,
	})
}

// ResetPasswordHandler redeems a reset token
func (p PasswordRecovery) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := p.Flow.Redeem(ctx, req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("password has been reset"))
}
