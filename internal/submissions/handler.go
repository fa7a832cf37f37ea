package submissions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"civitas/citizen-portal/citizen-portal-backend/internal/verification"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	subs := rg.Group("/submissions")
	{
		subs.POST("", h.Create)
		subs.GET("", h.List)
		subs.GET("/export", h.Export)
		subs.GET("/:id", h.Get)
		subs.GET("/:id/report", h.Report)
		subs.POST("/:id/approve", h.Approve)
		subs.POST("/:id/reject", h.Reject)
	}
}

type createSubmissionRequest struct {
	UserID              string                `json:"userId" binding:"required"`
	TaskID              string                `json:"taskId" binding:"required"`
	TaskType            verification.TaskType `json:"taskType" binding:"required"`
	Photos              []string              `json:"photos" binding:"required"`
	VerificationResults []verification.Result `json:"verificationResults"`
	Location            Location              `json:"location"`
	FormData            FormData              `json:"formData"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.service.CreateSubmission(c.Request.Context(), CreateRequest{
		UserID:              req.UserID,
		TaskID:              req.TaskID,
		TaskType:            req.TaskType,
		Photos:              req.Photos,
		VerificationResults: req.VerificationResults,
		Location:            req.Location,
		FormData:            req.FormData,
	})
	if errors.Is(err, ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) List(c *gin.Context) {
	var status *Status
	if statusStr := c.Query("status"); statusStr != "" {
		s := Status(statusStr)
		status = &s
	}
	var userID *string
	if uid := c.Query("userId"); uid != "" {
		userID = &uid
	}

	subs, err := h.service.ListSubmissions(c.Request.Context(), status, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, subs)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	sub, err := h.service.GetSubmission(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}

	c.JSON(http.StatusOK, sub)
}

type reviewRequest struct {
	ReviewedBy string `json:"reviewedBy" binding:"required"`
	Comments   string `json:"comments"`
}

func (h *Handler) Approve(c *gin.Context) {
	h.review(c, h.service.Approve)
}

func (h *Handler) Reject(c *gin.Context) {
	h.review(c, h.service.Reject)
}

func (h *Handler) review(c *gin.Context, decide func(ctx context.Context, id uuid.UUID, reviewedBy, comments string) (*Submission, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := decide(c.Request.Context(), id, req.ReviewedBy, req.Comments)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
	case errors.Is(err, ErrAlreadyReviewed):
		c.JSON(http.StatusConflict, gin.H{"error": "submission has already been reviewed"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		response := gin.H{"submission": sub}
		if sub.Status == StatusApproved {
			response["pointsAwarded"] = PointsFor(sub.TaskType)
		}
		c.JSON(http.StatusOK, response)
	}
}

func (h *Handler) Export(c *gin.Context) {
	var status *Status
	if statusStr := c.Query("status"); statusStr != "" {
		s := Status(statusStr)
		status = &s
	}

	subs, err := h.service.ListSubmissions(c.Request.Context(), status, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data, err := ExportXLSX(subs)
	if err != nil {
		h.logger.Error("xlsx export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	filename := fmt.Sprintf("submissions-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *Handler) Report(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	sub, err := h.service.GetSubmission(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}

	data, err := GenerateReportPDF(sub)
	if err != nil {
		h.logger.Error("pdf report failed", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report generation failed"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "verification-report-"+id.String()+".pdf"))
	c.Data(http.StatusOK, "application/pdf", data)
}
