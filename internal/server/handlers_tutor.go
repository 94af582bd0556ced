package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type tutorMessagePayload struct {
	Message string `json:"message"`
}

type tutorInstructionsPayload struct {
	Instructions string `json:"instructions"`
}

func (h *httpHandler) handleTutorHistory(c *gin.Context) {
	history, err := h.tutor.History(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, history)
}

func (h *httpHandler) handleTutorSend(c *gin.Context) {
	var request tutorMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	reply, err := h.tutor.Send(c.Request.Context(), request.Message)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, reply)
}

func (h *httpHandler) handleTutorInstructions(c *gin.Context) {
	instructions, err := h.tutor.Instructions(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"instructions": instructions})
}

func (h *httpHandler) handleTutorSetInstructions(c *gin.Context) {
	var request tutorInstructionsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	ack, err := h.tutor.SetInstructions(c.Request.Context(), request.Instructions)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, ack)
}

func (h *httpHandler) handleTutorClear(c *gin.Context) {
	history, err := h.tutor.Clear(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, history)
}
