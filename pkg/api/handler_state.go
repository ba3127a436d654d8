package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jhjames1/peerchat/pkg/appstate"
)

// getStateHandler handles GET /api/v1/state.
func (s *Server) getStateHandler(c *gin.Context) {
	state, err := s.appState.Load(c.Request.Context(), actor(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// putStateHandler handles PUT /api/v1/state. The body's version must match
// the stored version; the owner is always the caller.
func (s *Server) putStateHandler(c *gin.Context) {
	var state appstate.State
	if err := c.ShouldBindJSON(&state); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	state.OwnerID = actor(c).ID

	saved, err := s.appState.Save(c.Request.Context(), &state)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
