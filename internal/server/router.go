// Package server exposes the emulated backend over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/marinet/internal/auth"
	"github.com/MarcoPoloResearchLab/marinet/internal/groups"
	"github.com/MarcoPoloResearchLab/marinet/internal/posts"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/MarcoPoloResearchLab/marinet/internal/tutor"
	"github.com/MarcoPoloResearchLab/marinet/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const userIDContextKey = "marinet_user_id"

var (
	errMissingAuthManager   = errors.New("auth manager dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingSessions      = errors.New("session validator dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingPostsService  = errors.New("posts service dependency required")
	errMissingGroupsService = errors.New("groups service dependency required")
	errMissingTutorService  = errors.New("tutor service dependency required")
)

// SessionTokenManager issues access tokens for signed-in profiles.
type SessionTokenManager interface {
	IssueSessionToken(ctx context.Context, profile records.Profile) (string, int64, error)
}

// RequestValidator resolves the access token carried by a request.
type RequestValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies are the services served by the router.
type Dependencies struct {
	Auth     *auth.Manager
	Tokens   SessionTokenManager
	Sessions RequestValidator
	Users    *users.Service
	Posts    *posts.Service
	Groups   *groups.Service
	Tutor    *tutor.Service
	Logger   *zap.Logger
}

// NewHTTPHandler builds the gin engine serving every route.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, errMissingAuthManager
	case deps.Tokens == nil:
		return nil, errMissingTokenManager
	case deps.Sessions == nil:
		return nil, errMissingSessions
	case deps.Users == nil:
		return nil, errMissingUsersService
	case deps.Posts == nil:
		return nil, errMissingPostsService
	case deps.Groups == nil:
		return nil, errMissingGroupsService
	case deps.Tutor == nil:
		return nil, errMissingTutorService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	handler := &httpHandler{
		auth:     deps.Auth,
		tokens:   deps.Tokens,
		sessions: deps.Sessions,
		users:    deps.Users,
		posts:    deps.Posts,
		groups:   deps.Groups,
		tutor:    deps.Tutor,
		logger:   logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/auth/signup", handler.handleSignUp)
	router.POST("/auth/signin", handler.handleSignIn)
	router.POST("/auth/signout", handler.handleSignOut)
	router.GET("/auth/session", handler.handleSession)

	router.GET("/profile", handler.handleCurrentProfile)
	router.GET("/settings", handler.handleCurrentProfile)
	router.GET("/profile/:id", handler.handleGetProfile)
	router.GET("/profiles", handler.handleSearchProfiles)

	router.GET("/posts", handler.handleFeed)
	router.GET("/users/:id/posts", handler.handleUserPosts)

	router.GET("/groups", handler.handleListGroups)
	router.GET("/groups/popular", handler.handlePopularGroups)
	router.GET("/groups/:id", handler.handleGetGroup)
	router.GET("/groups/:id/members", handler.handleGroupMembers)
	router.GET("/groups/:id/posts", handler.handleGroupPosts)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.PATCH("/auth/user", handler.handleUpdateUser)
	protected.PATCH("/profiles/me", handler.handleUpdateProfile)

	protected.POST("/posts", handler.handleCreatePost)
	protected.DELETE("/posts/:id", handler.handleDeletePost)
	protected.POST("/posts/:id/vote", handler.handleVote)
	protected.GET("/votes/me", handler.handleMyVotes)

	protected.POST("/groups", handler.handleCreateGroup)
	protected.GET("/groups/mine", handler.handleMyGroups)
	protected.POST("/groups/:id/posts", handler.handleCreateGroupPost)
	protected.POST("/groups/:id/join", handler.handleJoinGroup)
	protected.POST("/groups/:id/leave", handler.handleLeaveGroup)

	protected.GET("/tutor/messages", handler.handleTutorHistory)
	protected.POST("/tutor/messages", handler.handleTutorSend)
	protected.GET("/tutor/instructions", handler.handleTutorInstructions)
	protected.PUT("/tutor/instructions", handler.handleTutorSetInstructions)
	protected.POST("/tutor/clear", handler.handleTutorClear)

	router.NoRoute(func(c *gin.Context) {
		respondData(c, http.StatusOK, gin.H{"message": "Mock API response"})
	})

	return router, nil
}

type httpHandler struct {
	auth     *auth.Manager
	tokens   SessionTokenManager
	sessions RequestValidator
	users    *users.Service
	posts    *posts.Service
	groups   *groups.Service
	tutor    *tutor.Service
	logger   *zap.Logger
}
