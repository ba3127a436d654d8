package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jhjames1/peerchat/pkg/models"
)

// createProposalHandler handles POST /api/v1/proposals.
func (s *Server) createProposalHandler(c *gin.Context) {
	var req models.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	proposal, err := s.proposalService.CreateProposal(c.Request.Context(), actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proposal)
}

// listProposalsHandler handles GET /api/v1/specialists/:id/proposals.
func (s *Server) listProposalsHandler(c *gin.Context) {
	proposals, err := s.proposalService.ListPending(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if proposals == nil {
		proposals = []*models.PendingProposal{}
	}
	c.JSON(http.StatusOK, &ProposalListResponse{Proposals: proposals})
}

// respondProposalHandler handles POST /api/v1/proposals/:id/respond.
func (s *Server) respondProposalHandler(c *gin.Context) {
	var req models.RespondProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	proposal, err := s.proposalService.Respond(c.Request.Context(), actor(c), c.Param("id"), req.Accept)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}
