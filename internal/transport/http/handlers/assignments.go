package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/resourceldg/cuiot-sub001/internal/transport/http/middleware"
	"github.com/resourceldg/cuiot-sub001/internal/usecase"
)

// AssignmentHandler serves the principal-role assignment surface.
type AssignmentHandler struct {
	assignments *usecase.AssignmentService
	authorizer  *usecase.Authorizer
}

// NewAssignmentHandler builds an AssignmentHandler.
func NewAssignmentHandler(assignments *usecase.AssignmentService, authorizer *usecase.Authorizer) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, authorizer: authorizer}
}

// AssignRole grants a role to the principal, superseding any other active
// assignment. Re-granting the held role is an idempotent no-op.
func (h *AssignmentHandler) AssignRole(c *gin.Context) {
	principalID := strings.TrimSpace(c.Param("id"))
	if principalID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "principal id is required"))
		return
	}

	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid assignment payload"))
		return
	}

	var assignedBy *string
	if actorID, ok := middleware.GetPrincipalID(c); ok {
		assignedBy = &actorID
	}

	granted, superseded, err := h.assignments.AssignRole(c.Request.Context(), principalID, req.Role, assignedBy, req.ExpiresAt)
	if err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to assign role")
		return
	}

	resp := AssignRoleResponse{Assignment: newAssignmentPayload(granted)}
	for i := range superseded {
		resp.Superseded = append(resp.Superseded, newAssignmentPayload(&superseded[i]))
	}

	c.JSON(http.StatusOK, resp)
}

// RevokeRole deactivates the principal's assignment of the named role. The
// row survives as audit history.
func (h *AssignmentHandler) RevokeRole(c *gin.Context) {
	principalID := strings.TrimSpace(c.Param("id"))
	if principalID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "principal id is required"))
		return
	}

	roleName := strings.TrimSpace(c.Param("name"))
	if roleName == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role name is required"))
		return
	}

	revoked, err := h.assignments.RevokeRole(c.Request.Context(), principalID, roleName)
	if err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to revoke role")
		return
	}

	if !revoked {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "no active assignment for role"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role revoked"})
}

// ListRoles returns the principal's active roles as the resolver sees them.
func (h *AssignmentHandler) ListRoles(c *gin.Context) {
	principalID := strings.TrimSpace(c.Param("id"))
	if principalID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "principal id is required"))
		return
	}

	roles, err := h.assignments.ListActiveRoles(c.Request.Context(), principalID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list roles"))
		return
	}

	payload := make([]RolePayload, 0, len(roles))
	for i := range roles {
		payload = append(payload, newRolePayload(&roles[i]))
	}

	c.JSON(http.StatusOK, PrincipalRolesResponse{PrincipalID: principalID, Roles: payload})
}

// ListAssignments returns the principal's assignment history. Pass
// active_only=true to restrict to currently active rows.
func (h *AssignmentHandler) ListAssignments(c *gin.Context) {
	principalID := strings.TrimSpace(c.Param("id"))
	if principalID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "principal id is required"))
		return
	}

	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active_only", "false"))

	assignments, err := h.assignments.ListAssignments(c.Request.Context(), principalID, activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list assignments"))
		return
	}

	resp := AssignmentListResponse{
		PrincipalID: principalID,
		Assignments: make([]AssignmentPayload, 0, len(assignments)),
	}
	for i := range assignments {
		resp.Assignments = append(resp.Assignments, newAssignmentPayload(&assignments[i]))
	}

	c.JSON(http.StatusOK, resp)
}

// CheckAccess answers whether the principal currently holds the queried
// permission. Diagnostic endpoint for support tooling; denial is a normal
// 200 response with allowed=false.
func (h *AssignmentHandler) CheckAccess(c *gin.Context) {
	principalID := strings.TrimSpace(c.Param("id"))
	if principalID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "principal id is required"))
		return
	}

	permission := strings.TrimSpace(c.Query("permission"))
	if permission == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "permission query parameter is required"))
		return
	}

	allowed, err := h.authorizer.HasPermission(c.Request.Context(), principalID, permission)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to check access"))
		return
	}

	c.JSON(http.StatusOK, AccessCheckResponse{
		PrincipalID: principalID,
		Permission:  permission,
		Allowed:     allowed,
	})
}
