package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jhjames1/peerchat/pkg/auth"
	"github.com/jhjames1/peerchat/pkg/models"
)

// actor returns the caller resolved by auth.Middleware.
func actor(c *gin.Context) models.Actor {
	a, _ := auth.ActorFrom(c)
	return a
}

// bindOptionalJSON binds the body into v, accepting an empty body.
func bindOptionalJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// startSessionHandler handles POST /api/v1/sessions/start.
func (s *Server) startSessionHandler(c *gin.Context) {
	session, created, err := s.sessionService.StartSession(c.Request.Context(), actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, &StartSessionResponse{Session: session, Created: created})
}

// listSessionsHandler handles GET /api/v1/sessions.
func (s *Server) listSessionsHandler(c *gin.Context) {
	filter := models.SessionFilter{
		Status:       models.SessionStatus(c.Query("status")),
		SpecialistID: c.Query("specialist_id"),
	}
	switch c.Query("order") {
	case "", "desc":
	case "asc":
		filter.Ascending = true
	default:
		badRequest(c, "invalid order: must be asc or desc")
		return
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			badRequest(c, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	sessions, err := s.sessionService.ListSessions(c.Request.Context(), actor(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []*models.ChatSession{}
	}
	c.JSON(http.StatusOK, &models.SessionListResponse{Sessions: sessions})
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	session, err := s.sessionService.GetSession(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// claimSessionHandler handles POST /api/v1/sessions/:id/claim.
func (s *Server) claimSessionHandler(c *gin.Context) {
	var req models.ClaimSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	session, err := s.sessionService.ClaimSession(c.Request.Context(), actor(c), c.Param("id"), req.Slot)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// endSessionHandler handles POST /api/v1/sessions/:id/end.
func (s *Server) endSessionHandler(c *gin.Context) {
	var req models.EndSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	session, err := s.sessionService.EndSession(c.Request.Context(), actor(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// touchSessionHandler handles POST /api/v1/sessions/:id/touch.
func (s *Server) touchSessionHandler(c *gin.Context) {
	if err := s.sessionService.TouchSession(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
