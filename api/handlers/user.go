package handlers

import (
	"net/http"

	"github.com/linesmerrill/laundry-api/api"
	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

// User handles login and the signed in user's own account
type User struct {
	Accounts identity.Accounts
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type profileResponse struct {
	Success bool               `json:"success"`
	User    *models.PublicUser `json:"user"`
}

// LoginHandler exchanges an email and password for a bearer token
func (u User) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	session, err := u.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Success: true, Session: session})
}

// MeHandler returns the public profile of the signed in user
func (u User) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := api.UserIDFromContext(r.Context())

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	profile, err := u.Accounts.Profile(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Success: true, User: profile})
}

// ChangePasswordHandler replaces the signed in user's password
func (u User) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	userID, _ := api.UserIDFromContext(r.Context())

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := u.Accounts.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message("password updated"))
}
