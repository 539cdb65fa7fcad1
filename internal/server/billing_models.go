package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	billingdomain "github.com/stackbill/stackbill/internal/billingmodel/domain"
)

type createBillingModelRequest struct {
	Name        string                      `json:"name"`
	Description *string                     `json:"description"`
	ModelType   billingdomain.ModelType     `json:"model_type"`
	Items       []billingdomain.BillingItem `json:"items"`
}

func (s *Server) CreateBillingModel(c *gin.Context) {
	var req createBillingModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.modelSvc.Create(c.Request.Context(), billingdomain.CreateRequest{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ModelType:   req.ModelType,
		Items:       req.Items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListBillingModels(c *gin.Context) {
	var query struct {
		ModelType string `form:"model_type"`
		SortBy    string `form:"sort_by"`
		OrderBy   string `form:"order_by"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.modelSvc.List(c.Request.Context(), billingdomain.ListRequest{
		ModelType: strings.TrimSpace(query.ModelType),
		SortBy:    strings.TrimSpace(query.SortBy),
		OrderBy:   strings.TrimSpace(query.OrderBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBillingModel(c *gin.Context) {
	resp, err := s.modelSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateBillingModelRequest struct {
	Name        *string                     `json:"name"`
	Description *string                     `json:"description"`
	ModelType   *billingdomain.ModelType    `json:"model_type"`
	Items       []billingdomain.BillingItem `json:"items"`
}

func (s *Server) UpdateBillingModel(c *gin.Context) {
	var req updateBillingModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.modelSvc.Update(c.Request.Context(), billingdomain.UpdateRequest{
		ID:          strings.TrimSpace(c.Param("id")),
		Name:        req.Name,
		Description: req.Description,
		ModelType:   req.ModelType,
		Items:       req.Items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteBillingModel(c *gin.Context) {
	if err := s.modelSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
