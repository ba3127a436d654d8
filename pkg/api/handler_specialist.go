package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jhjames1/peerchat/pkg/models"
)

// getSpecialistHandler handles GET /api/v1/specialists/:id.
func (s *Server) getSpecialistHandler(c *gin.Context) {
	specialist, err := s.specialistService.GetSpecialist(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, specialist)
}

// updateStatusHandler handles PUT /api/v1/specialists/:id/status.
func (s *Server) updateStatusHandler(c *gin.Context) {
	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	specialist, err := s.specialistService.UpdateStatus(c.Request.Context(), actor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, specialist)
}

// slotsHandler handles GET /api/v1/specialists/:id/slots.
func (s *Server) slotsHandler(c *gin.Context) {
	id := c.Param("id")
	slots, err := s.sessionService.SlotAvailability(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &models.SlotsResponse{SpecialistID: id, Slots: slots})
}

// addScheduleHandler handles POST /api/v1/specialists/:id/schedules.
func (s *Server) addScheduleHandler(c *gin.Context) {
	var req models.AddScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	schedule, err := s.specialistService.AddSchedule(c.Request.Context(), actor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

// listSchedulesHandler handles GET /api/v1/specialists/:id/schedules.
func (s *Server) listSchedulesHandler(c *gin.Context) {
	schedules, err := s.specialistService.ListSchedules(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if schedules == nil {
		schedules = []*models.Schedule{}
	}
	c.JSON(http.StatusOK, &ScheduleListResponse{Schedules: schedules})
}
