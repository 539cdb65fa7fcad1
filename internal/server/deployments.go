package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	reconcilerdomain "github.com/stackbill/stackbill/internal/reconciler/domain"
)

// PlanDeployment computes the remote operations a deploy would perform
// without touching the provider.
func (s *Server) PlanDeployment(c *gin.Context) {
	plan, err := s.reconcilerSvc.PlanDeployment(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plan})
}

func (s *Server) Deploy(c *gin.Context) {
	resp, err := s.reconcilerSvc.Deploy(c.Request.Context(), reconcilerdomain.DeployRequest{
		BillingModelID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListDeployments(c *gin.Context) {
	var query reconcilerdomain.ListRunsRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	runs, pageInfo, err := s.reconcilerSvc.ListRuns(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs, "page_info": pageInfo})
}
