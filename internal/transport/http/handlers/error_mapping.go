package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resourceldg/cuiot-sub001/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// authzErrorCases covers the sentinels any role or assignment operation can
// surface. Endpoint-specific cases passed to RespondWithMappedError take
// precedence over it.
var authzErrorCases = []ErrorCase{
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: usecase.ErrRoleExists, Status: http.StatusConflict, Message: "role already exists"},
	{Err: usecase.ErrProtectedRole, Status: http.StatusForbidden, Message: "system role cannot be modified"},
	{Err: usecase.ErrInvalidPermissionTree, Status: http.StatusBadRequest, Message: "invalid permission tree"},
}

// RespondWithMappedError matches err against the endpoint-specific cases
// first, then the shared authorization sentinels, and falls back to the
// provided status and message otherwise.
func RespondWithMappedError(c *gin.Context, err error, fallbackStatus int, fallbackMessage string, cases ...ErrorCase) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	for _, cs := range authzErrorCases {
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
