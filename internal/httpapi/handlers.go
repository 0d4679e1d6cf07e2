package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pfrederiksen/club-sync/internal/calendar"
	"github.com/pfrederiksen/club-sync/internal/entity"
	"github.com/pfrederiksen/club-sync/internal/jobs"
	"github.com/pfrederiksen/club-sync/internal/logger"
	"github.com/pfrederiksen/club-sync/internal/storage"
)

// IngestRequest is the body of POST /api/v1/ingest
type IngestRequest struct {
	Type string `json:"type"`
}

// IngestResponse reports a completed job, or one a worker picked up first
type IngestResponse struct {
	JobID   uint             `json:"job_id"`
	Status  entity.JobStatus `json:"status"`
	Count   int              `json:"count"`
	Message string           `json:"message"`
}

// handleIngest enqueues a job of the requested type and runs it synchronously
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: CodeInvalidBody})
	}
	jobType, err := jobs.ParseType(req.Type)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: `unknown type "` + req.Type + `": expected "events" or "clubs"`,
			Code:  CodeUnknownType,
		})
	}

	ctx := c.Request().Context()
	queued, err := s.orchestrator.Ledger().Enqueue(ctx, jobType)
	if err != nil {
		logger.Error("Enqueue failed", logger.Fields{"type": jobType}, err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "could not enqueue job", Code: CodeInternal})
	}

	if s.enqueued != nil {
		s.enqueued(ctx, queued)
	}

	job, err := s.orchestrator.RunJob(ctx, queued.ID)
	if errors.Is(err, jobs.ErrNotPending) {
		// A worker claimed it first and runs it to completion
		logger.Info("Triggered job claimed by a worker", logger.Fields{"job_id": queued.ID})
		status := entity.JobRunning
		if current, getErr := s.orchestrator.Ledger().Get(ctx, queued.ID); getErr == nil {
			status = current.Status
		}
		return c.JSON(http.StatusAccepted, IngestResponse{
			JobID:   queued.ID,
			Status:  status,
			Message: "job claimed by a background worker; poll /api/v1/jobs/" + strconv.FormatUint(uint64(queued.ID), 10),
		})
	}
	if err != nil {
		logger.Error("Triggered job did not finish", logger.Fields{"job_id": queued.ID}, err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal, JobID: queued.ID})
	}

	result := job.Result.Data()
	if job.Status != entity.JobCompleted {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: result.Error, Code: CodeJobFailed, JobID: job.ID})
	}

	return c.JSON(http.StatusOK, IngestResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Count:   result.Count,
		Message: result.Message,
	})
}

func (s *Server) handleGetJob(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "job id must be a positive integer", Code: CodeInvalidID})
	}

	job, err := s.orchestrator.Ledger().Get(c.Request().Context(), uint(id))
	if errors.Is(err, jobs.ErrJobNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleEventsICS(c echo.Context) error {
	events, err := s.store.ListEvents(c.Request().Context(), storage.EventFilter{Status: entity.StatusApproved})
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="events.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(calendar.GenerateICS(events, s.calendar, s.now())))
}

func (s *Server) handleHealth(c echo.Context) error {
	sqlDB, err := s.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		logger.Error("Health check failed", logger.Fields{}, err)
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "database unavailable", Code: CodeInternal})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
