package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jhjames1/peerchat/pkg/auth"
	"github.com/jhjames1/peerchat/pkg/models"
	"github.com/jhjames1/peerchat/pkg/services"
)

const maxGuestIDLength = 128

type specialistLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type guestTokenRequest struct {
	UserID string `json:"user_id"`
}

func functionError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, &FunctionResponse{Success: false, Error: message})
}

// specialistLoginHandler handles POST /functions/v1/specialist-login.
// Every credential failure gets the same response.
func (s *Server) specialistLoginHandler(c *gin.Context) {
	var req specialistLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		functionError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	specialist, err := s.specialistService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if services.IsAuthorizationError(err) {
			functionError(c, http.StatusUnauthorized, "invalid email or password")
			return
		}
		status, body := mapServiceError(err)
		functionError(c, status, body.Error)
		return
	}

	token, expiresAt, err := s.tokens.Issue(models.Actor{ID: specialist.ID, Role: models.RoleSpecialist})
	if err != nil {
		status, body := mapServiceError(err)
		functionError(c, status, body.Error)
		return
	}

	c.JSON(http.StatusOK, &FunctionResponse{
		Success:    true,
		Token:      token,
		ExpiresAt:  expiresAt.Unix(),
		Specialist: specialist,
	})
}

// guestTokenHandler handles POST /functions/v1/guest-token. Without a
// user_id the caller gets a fresh anonymous id, or a renewal when it
// presents a valid user token. A supplied user_id is only honored as a
// renewal by the holder of that user's token, so ids cannot be chosen.
func (s *Server) guestTokenHandler(c *gin.Context) {
	var req guestTokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			functionError(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	presented, ok := auth.RequestActor(s.tokens, c)
	renewing := ok && presented.Role == models.RoleUser

	userID := strings.TrimSpace(req.UserID)
	switch {
	case userID == "" && renewing:
		userID = presented.ID
	case userID == "":
		userID = uuid.NewString()
	case len(userID) > maxGuestIDLength || strings.ContainsAny(userID, " \t\r\n"):
		functionError(c, http.StatusBadRequest, "invalid user_id")
		return
	case !renewing || presented.ID != userID:
		functionError(c, http.StatusForbidden, "user_id can only be renewed with that user's token")
		return
	}

	token, expiresAt, err := s.tokens.Issue(models.Actor{ID: userID, Role: models.RoleUser})
	if err != nil {
		status, body := mapServiceError(err)
		functionError(c, status, body.Error)
		return
	}

	c.JSON(http.StatusOK, &FunctionResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		UserID:    userID,
	})
}
