package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockflow/internal/core/apperror"
	"stockflow/internal/domain/report"
	"stockflow/internal/infrastructure/http/v1/dto"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MovementReporter builds movement reports.
type MovementReporter interface {
	Movements(ctx context.Context, q report.Query) (*report.Report, error)
}

// ReportHandler serves reports.
type ReportHandler struct {
	*BaseHandler
	service MovementReporter
}

// NewReportHandler creates a new report handler.
func NewReportHandler(base *BaseHandler, service MovementReporter) *ReportHandler {
	return &ReportHandler{BaseHandler: base, service: service}
}

// Movements handles GET /reports/movements
func (h *ReportHandler) Movements(c *gin.Context) {
	var q dto.MovementsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	if q.Format != "" && q.Format != "json" && q.Format != "xlsx" {
		h.Error(c, apperror.NewValidation("format must be json or xlsx").WithDetail("format", q.Format))
		return
	}

	rep, err := h.service.Movements(c.Request.Context(), q.Query)
	if err != nil {
		h.Error(c, err)
		return
	}
	if q.Format != "xlsx" {
		h.OK(c, rep)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, rep); err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(rep)))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
