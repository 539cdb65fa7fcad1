package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	reconcilerdomain "github.com/stackbill/stackbill/internal/reconciler/domain"
)

// PlanCleanup lists the duplicate app-managed provider objects that a
// cleanup run would deactivate.
func (s *Server) PlanCleanup(c *gin.Context) {
	actions, err := s.reconcilerSvc.PlanCleanup(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": actions})
}

type executeCleanupRequest struct {
	Actions []reconcilerdomain.DeactivationAction `json:"actions"`
}

// ExecuteCleanup deactivates the supplied actions; with an empty body it
// plans and executes in one pass.
func (s *Server) ExecuteCleanup(c *gin.Context) {
	var req executeCleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	actions := req.Actions
	if len(actions) == 0 {
		planned, err := s.reconcilerSvc.PlanCleanup(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		actions = planned
	}

	result, err := s.reconcilerSvc.ExecuteCleanup(c.Request.Context(), actions)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
