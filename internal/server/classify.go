package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	classifierdomain "github.com/stackbill/stackbill/internal/classifier/domain"
)

type classifyRequest struct {
	Format string                `json:"format"`
	Data   string                `json:"data"`
	Rows   []classifierdomain.Row `json:"rows"`
}

// Classify accepts either pre-parsed rows or a raw payload plus a format
// hint, and returns the structure guess with provisional billing items.
func (s *Server) Classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	format := classifierdomain.Format(strings.ToLower(strings.TrimSpace(req.Format)))
	if format == "" {
		format = classifierdomain.FormatText
	}

	rows := req.Rows
	if rows == nil {
		if strings.TrimSpace(req.Data) == "" {
			AbortWithError(c, newValidationError("data", "required", "rows or data is required"))
			return
		}
		parsed, err := s.classifierSvc.ParseRows(req.Data, format)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		rows = parsed
	}

	result := s.classifierSvc.Classify(rows, format)
	c.JSON(http.StatusOK, gin.H{"data": result})
}
