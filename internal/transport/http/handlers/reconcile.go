package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/resourceldg/cuiot-sub001/internal/usecase"
)

// ReconcileHandler triggers an on-demand reconciliation pass.
type ReconcileHandler struct {
	reconciler *usecase.Reconciler
}

// NewReconcileHandler builds a ReconcileHandler.
func NewReconcileHandler(reconciler *usecase.Reconciler) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

// Run executes one reconciliation pass. The pass is idempotent; running it
// against a converged store performs no writes.
func (h *ReconcileHandler) Run(c *gin.Context) {
	if h.reconciler == nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "reconciler not configured"))
		return
	}

	if err := h.reconciler.Run(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "reconciliation failed"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "reconciliation complete"})
}
