package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "flow/internal/errors"
	"flow/internal/queue"
	"flow/internal/services"
)

// PipelineHandler exposes the batch jobs to external dispatchers.
type PipelineHandler struct {
	recurringService services.RecurringServicer
	budgetService    services.BudgetServicer
	reportService    services.ReportServicer
	publisher        queue.Publisher
	timeout          time.Duration
}

// NewPipelineHandler creates a new PipelineHandler. With a non-nil publisher
// the recurring job fans due templates out to the queue instead of
// materializing them in the request.
func NewPipelineHandler(
	recurringService services.RecurringServicer,
	budgetService services.BudgetServicer,
	reportService services.ReportServicer,
	publisher queue.Publisher,
	timeout time.Duration,
) *PipelineHandler {
	return &PipelineHandler{
		recurringService: recurringService,
		budgetService:    budgetService,
		reportService:    reportService,
		publisher:        publisher,
		timeout:          timeout,
	}
}

// RunJobRequest optionally pins the processing instant.
type RunJobRequest struct {
	Now *time.Time `json:"now"`
}

// RunJobResponse wraps a job's counters.
type RunJobResponse struct {
	Result *services.RunResult `json:"result"`
}

func (h *PipelineHandler) jobContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.timeout)
	}
	return context.WithCancel(c.Request.Context())
}

// bindNow reads the optional body. An empty body means now.
func bindNow(c *gin.Context) (time.Time, error) {
	now := time.Now().UTC()
	if c.Request.ContentLength == 0 {
		return now, nil
	}
	var req RunJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return now, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
	}
	if req.Now != nil {
		now = req.Now.UTC()
	}
	return now, nil
}

// RunRecurring processes due recurring templates.
// @Summary     Run recurring transactions
// @Description Materialize every due recurring template (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       X-API-Key header   string        true  "Pipeline API key"
// @Param       request   body     RunJobRequest false "Processing instant"
// @Success     200       {object} RunJobResponse      "Job counters"
// @Failure     400       {object} ErrorResponse       "Invalid input"
// @Failure     401       {object} ErrorResponse       "Invalid API key"
// @Failure     503       {object} ErrorResponse       "Pipeline not configured"
// @Router      /pipeline/jobs/recurring [post]
func (h *PipelineHandler) RunRecurring(c *gin.Context) {
	now, err := bindNow(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ctx, cancel := h.jobContext(c)
	defer cancel()

	var result *services.RunResult
	if h.publisher != nil {
		result, err = h.recurringService.PublishDue(ctx, now, h.publisher)
	} else {
		result, err = h.recurringService.ProcessDue(ctx, now)
	}
	if err != nil && result == nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, RunJobResponse{Result: result})
}

// RunBudgetAlerts evaluates every budget.
// @Summary     Run budget alerts
// @Description Evaluate every budget and send threshold alerts (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       X-API-Key header   string        true  "Pipeline API key"
// @Param       request   body     RunJobRequest false "Processing instant"
// @Success     200       {object} RunJobResponse      "Job counters"
// @Failure     400       {object} ErrorResponse       "Invalid input"
// @Failure     401       {object} ErrorResponse       "Invalid API key"
// @Failure     503       {object} ErrorResponse       "Pipeline not configured"
// @Router      /pipeline/jobs/budget-alerts [post]
func (h *PipelineHandler) RunBudgetAlerts(c *gin.Context) {
	now, err := bindNow(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ctx, cancel := h.jobContext(c)
	defer cancel()

	result, err := h.budgetService.CheckBudgetAlerts(ctx, now)
	if err != nil && result == nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, RunJobResponse{Result: result})
}

// RunMonthlyReports sends last month's report to every user.
// @Summary     Run monthly reports
// @Description Send the previous month's report to every user (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       X-API-Key header   string        true  "Pipeline API key"
// @Param       request   body     RunJobRequest false "Processing instant"
// @Success     200       {object} RunJobResponse      "Job counters"
// @Failure     400       {object} ErrorResponse       "Invalid input"
// @Failure     401       {object} ErrorResponse       "Invalid API key"
// @Failure     503       {object} ErrorResponse       "Pipeline not configured"
// @Router      /pipeline/jobs/monthly-reports [post]
func (h *PipelineHandler) RunMonthlyReports(c *gin.Context) {
	now, err := bindNow(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ctx, cancel := h.jobContext(c)
	defer cancel()

	result, err := h.reportService.SendMonthlyReports(ctx, now)
	if err != nil && result == nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, RunJobResponse{Result: result})
}
