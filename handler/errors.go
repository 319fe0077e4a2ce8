package handler

import (
	"errors"
	"net/http"

	"github.com/adelegard/TouchrServer/middleware"
	"github.com/adelegard/TouchrServer/service"
	"github.com/adelegard/TouchrServer/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		utils.Log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	utils.ErrorResponse(c, status, err.Error())
}

// currentUser fetches the authenticated user id or writes a 401.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Unauthorized(c, "unauthorized")
	}
	return userID, ok
}

// pathID parses a uuid path parameter or writes a 400.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func page(c *gin.Context) int {
	return utils.ParsePage(c.Query("page"))
}
