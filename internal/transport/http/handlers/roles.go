package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/resourceldg/cuiot-sub001/internal/usecase"
)

// RoleHandler serves the role management surface.
type RoleHandler struct {
	roles *usecase.RoleService
}

// NewRoleHandler builds a RoleHandler.
func NewRoleHandler(roles *usecase.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// CreateRole provisions a new role with an optional permission tree.
func (h *RoleHandler) CreateRole(c *gin.Context) {
	if h.roles == nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "role handler not fully configured"))
		return
	}

	var req RoleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	role, err := h.roles.CreateRole(c.Request.Context(), usecase.CreateRoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to create role")
		return
	}

	c.JSON(http.StatusCreated, newRolePayload(role))
}

// GetRole returns a single role by ID.
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.roles.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to get role")
		return
	}

	c.JSON(http.StatusOK, newRolePayload(role))
}

// ListRoles returns all roles. Pass active_only=true to exclude deactivated
// ones.
func (h *RoleHandler) ListRoles(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active_only", "false"))

	roles, err := h.roles.ListRoles(c.Request.Context(), activeOnly)
	if err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to list roles")
		return
	}

	payload := make([]RolePayload, 0, len(roles))
	for i := range roles {
		payload = append(payload, newRolePayload(&roles[i]))
	}

	c.JSON(http.StatusOK, RoleListResponse{Roles: payload})
}

// UpdateRole applies a partial update to a role. System roles are rejected.
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	var req RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	input := usecase.UpdateRoleInput{Name: req.Name, Description: req.Description}
	if req.Permissions != nil {
		input.Permissions = *req.Permissions
	}

	role, err := h.roles.UpdateRole(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to update role")
		return
	}

	c.JSON(http.StatusOK, newRolePayload(role))
}

// DeactivateRole soft-deletes a role. Assignment history keeps referencing it.
func (h *RoleHandler) DeactivateRole(c *gin.Context) {
	if err := h.roles.DeactivateRole(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, http.StatusInternalServerError, "failed to deactivate role")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role deactivated"})
}
