package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/marinet/internal/auth"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type sessionPayload struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   int64           `json:"expires_in"`
	TokenType   string          `json:"token_type"`
	User        records.Profile `json:"user"`
}

type userPatchPayload struct {
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	Username  *string `json:"username"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
}

func (h *httpHandler) handleSignUp(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	profile, err := h.auth.SignUp(c.Request.Context(), request.Email, request.Password, request.Username)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusCreated, gin.H{"user": profile})
}

func (h *httpHandler) handleSignIn(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	profile, err := h.auth.SignIn(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), profile)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "token_issue_failed", "Could not issue a session token")
		return
	}
	respondData(c, http.StatusOK, gin.H{
		"user": profile,
		"session": sessionPayload{
			AccessToken: token,
			ExpiresIn:   expiresIn,
			TokenType:   "Bearer",
			User:        profile,
		},
	})
}

func (h *httpHandler) handleSignOut(c *gin.Context) {
	if err := h.auth.SignOut(c.Request.Context()); err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, nil)
}

func (h *httpHandler) handleSession(c *gin.Context) {
	session, err := h.auth.Session(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"session": session})
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	var request userPatchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	current, err := h.auth.User(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if current == nil || current.ID != currentUserID(c) {
		h.writeServiceError(c, auth.ErrNoActiveSession)
		return
	}
	profile, err := h.auth.UpdateUser(c.Request.Context(), auth.UserPatch{
		Email:     request.Email,
		Password:  request.Password,
		Username:  request.Username,
		AvatarURL: request.AvatarURL,
		Bio:       request.Bio,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"user": profile})
}

// handleCurrentProfile serves the signed-in user of the emulated session.
func (h *httpHandler) handleCurrentProfile(c *gin.Context) {
	user, err := h.auth.User(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if user == nil {
		respondError(c, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}
	profile, err := h.users.Get(c.Request.Context(), user.ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, profile)
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, profile)
}

func (h *httpHandler) handleSearchProfiles(c *gin.Context) {
	profiles, err := h.users.Search(c.Request.Context(), c.Query("search"), queryInt(c, "limit"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, profiles)
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	var request users.ProfileUpdate
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	profile, err := h.users.UpdateProfile(c.Request.Context(), currentUserID(c), request)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, profile)
}
