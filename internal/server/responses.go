package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/marinet/internal/auth"
	"github.com/MarcoPoloResearchLab/marinet/internal/groups"
	"github.com/MarcoPoloResearchLab/marinet/internal/posts"
	"github.com/MarcoPoloResearchLab/marinet/internal/serviceerr"
	"github.com/MarcoPoloResearchLab/marinet/internal/tutor"
	"github.com/MarcoPoloResearchLab/marinet/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type envelope struct {
	Data  any           `json:"data"`
	Error *errorPayload `json:"error"`
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Data: data})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, envelope{Error: &errorPayload{Message: message, Code: code}})
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{Error: &errorPayload{Message: message, Code: code}})
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{auth.ErrDuplicateCredential, http.StatusConflict, "duplicate_credential", "User already exists"},
	{auth.ErrUserNotFound, http.StatusNotFound, "user_not_found", "User not found"},
	{auth.ErrInvalidPassword, http.StatusUnauthorized, "invalid_password", "Invalid password"},
	{auth.ErrNoActiveSession, http.StatusUnauthorized, "no_active_session", "No user is currently signed in"},
	{auth.ErrInvalidCredentials, http.StatusBadRequest, "invalid_request", "Email and password are required"},
	{users.ErrProfileNotFound, http.StatusNotFound, "not_found", "Profile not found"},
	{users.ErrUsernameRequired, http.StatusBadRequest, "invalid_request", "Username is required"},
	{posts.ErrPostNotFound, http.StatusNotFound, "not_found", "Post not found"},
	{posts.ErrNotAuthor, http.StatusForbidden, "forbidden", "Only the author can delete this post"},
	{posts.ErrEmptyPost, http.StatusBadRequest, "invalid_request", "Post content or image is required"},
	{posts.ErrContentTooLong, http.StatusBadRequest, "invalid_request", "Post content is too long"},
	{posts.ErrInvalidVote, http.StatusBadRequest, "invalid_request", "Vote type must be upvote or downvote"},
	{posts.ErrGroupNotFound, http.StatusNotFound, "not_found", "Group not found"},
	{posts.ErrNotGroupMember, http.StatusForbidden, "forbidden", "Join the group to post in it"},
	{groups.ErrGroupNotFound, http.StatusNotFound, "not_found", "Group not found"},
	{groups.ErrNameRequired, http.StatusBadRequest, "invalid_request", "Group name is required"},
	{groups.ErrAlreadyMember, http.StatusConflict, "already_member", "Already a member of this group"},
	{groups.ErrNotMember, http.StatusConflict, "not_member", "Not a member of this group"},
	{tutor.ErrEmptyMessage, http.StatusBadRequest, "invalid_request", "Message is required"},
}

// writeServiceError maps known failures to client errors; anything else is logged and
// reported as an internal error without details.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			respondError(c, mapping.status, mapping.code, mapping.message)
			return
		}
	}
	h.logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.String("code", serviceerr.CodeOf(err)),
		zap.Error(err))
	respondError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
}
