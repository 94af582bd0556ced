package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/marinet/internal/groups"
	"github.com/MarcoPoloResearchLab/marinet/internal/posts"
	"github.com/MarcoPoloResearchLab/marinet/internal/records"
	"github.com/gin-gonic/gin"
)

type createPostPayload struct {
	Content  string  `json:"content"`
	ImageURL *string `json:"image_url"`
	GroupID  *string `json:"group_id"`
}

type votePayload struct {
	VoteType records.VoteKind `json:"vote_type"`
}

type createGroupPayload struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ImageURL    *string `json:"image_url"`
}

func (h *httpHandler) handleFeed(c *gin.Context) {
	feed, err := h.posts.Feed(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, feed)
}

func (h *httpHandler) handleUserPosts(c *gin.Context) {
	userPosts, err := h.posts.UserPosts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, userPosts)
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	var request createPostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	h.createPost(c, request)
}

func (h *httpHandler) handleCreateGroupPost(c *gin.Context) {
	var request createPostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	groupID := c.Param("id")
	request.GroupID = &groupID
	h.createPost(c, request)
}

func (h *httpHandler) createPost(c *gin.Context, request createPostPayload) {
	post, err := h.posts.Create(c.Request.Context(), posts.NewPost{
		UserID:   currentUserID(c),
		Content:  request.Content,
		ImageURL: request.ImageURL,
		GroupID:  request.GroupID,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusCreated, post)
}

func (h *httpHandler) handleDeletePost(c *gin.Context) {
	if err := h.posts.Delete(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

func (h *httpHandler) handleVote(c *gin.Context) {
	var request votePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	outcome, err := h.posts.Vote(c.Request.Context(), c.Param("id"), currentUserID(c), request.VoteType)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, outcome)
}

func (h *httpHandler) handleMyVotes(c *gin.Context) {
	votes, err := h.posts.UserVotes(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, votes)
}

func (h *httpHandler) handleListGroups(c *gin.Context) {
	all, err := h.groups.List(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, all)
}

func (h *httpHandler) handlePopularGroups(c *gin.Context) {
	popular, err := h.groups.Popular(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, popular)
}

func (h *httpHandler) handleMyGroups(c *gin.Context) {
	mine, err := h.groups.ForMember(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, mine)
}

func (h *httpHandler) handleGetGroup(c *gin.Context) {
	group, err := h.groups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, group)
}

func (h *httpHandler) handleGroupMembers(c *gin.Context) {
	if _, err := h.groups.Get(c.Request.Context(), c.Param("id")); err != nil {
		h.writeServiceError(c, err)
		return
	}
	members, err := h.groups.Members(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, members)
}

func (h *httpHandler) handleGroupPosts(c *gin.Context) {
	if _, err := h.groups.Get(c.Request.Context(), c.Param("id")); err != nil {
		h.writeServiceError(c, err)
		return
	}
	groupPosts, err := h.posts.GroupPosts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, groupPosts)
}

func (h *httpHandler) handleCreateGroup(c *gin.Context) {
	var request createGroupPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	group, err := h.groups.Create(c.Request.Context(), groups.NewGroup{
		Name:        request.Name,
		Description: request.Description,
		CreatedBy:   currentUserID(c),
		ImageURL:    request.ImageURL,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusCreated, group)
}

func (h *httpHandler) handleJoinGroup(c *gin.Context) {
	group, err := h.groups.Join(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, group)
}

func (h *httpHandler) handleLeaveGroup(c *gin.Context) {
	group, err := h.groups.Leave(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, group)
}

// queryInt returns the integer query parameter, or zero when absent or malformed.
func queryInt(c *gin.Context, name string) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return value
}
