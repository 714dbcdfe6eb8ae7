package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/db"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/service"
)

// RunHandler exposes the run history query and administrative surface.
type RunHandler struct {
	svc *service.Service
}

func NewRunHandler(svc *service.Service) *RunHandler {
	return &RunHandler{svc: svc}
}

// ListRuns returns filtered runs newest-first.
func (h *RunHandler) ListRuns(ctx context.Context, c *app.RequestContext) {
	filter := db.RunFilter{
		Status:   c.Query("status"),
		Query:    c.Query("q"),
		TimeFrom: queryTime(c, "time_from"),
		TimeTo:   queryTime(c, "time_to"),
		Limit:    queryInt(c, "limit", 100),
		Offset:   queryInt(c, "offset", 0),
	}

	items, total, err := h.svc.ListRuns(ctx, filter)
	if err != nil {
		writeInternalError(c, err)
		return
	}
	writeOK(c, map[string]interface{}{
		"items": items,
		"total": total,
	})
}

// GetRun returns one run by id.
func (h *RunHandler) GetRun(ctx context.Context, c *app.RequestContext) {
	id, err := runID(c)
	if err != nil {
		writeBadRequest(c, err)
		return
	}

	run, err := h.svc.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			writeNotFound(c, err)
			return
		}
		writeInternalError(c, err)
		return
	}
	writeOK(c, run)
}

// DeleteRun removes one run by id.
func (h *RunHandler) DeleteRun(ctx context.Context, c *app.RequestContext) {
	id, err := runID(c)
	if err != nil {
		writeBadRequest(c, err)
		return
	}

	if err := h.svc.DeleteRun(ctx, id); err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			writeNotFound(c, err)
			return
		}
		writeInternalError(c, err)
		return
	}
	writeOK(c, map[string]string{
		"message": fmt.Sprintf("pipeline run %d deleted", id),
	})
}

// GetRunLogs streams the archived console log of a run.
func (h *RunHandler) GetRunLogs(ctx context.Context, c *app.RequestContext) {
	id, err := runID(c)
	if err != nil {
		writeBadRequest(c, err)
		return
	}

	logs, err := h.svc.RunLogs(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunNotFound), errors.Is(err, service.ErrLogsNotArchived):
			writeNotFound(c, err)
		default:
			writeInternalError(c, err)
		}
		return
	}
	c.Data(200, "text/plain; charset=utf-8", []byte(logs))
}

// Metrics returns aggregate reliability figures, optionally windowed by
// time_from/time_to.
func (h *RunHandler) Metrics(ctx context.Context, c *app.RequestContext) {
	metrics, err := h.svc.Metrics(ctx, queryTime(c, "time_from"), queryTime(c, "time_to"))
	if err != nil {
		writeInternalError(c, err)
		return
	}
	writeOK(c, metrics)
}

// RecentFailures lists the latest failed runs for the notifications panel.
func (h *RunHandler) RecentFailures(ctx context.Context, c *app.RequestContext) {
	failures, err := h.svc.RecentFailures(ctx, queryInt(c, "limit", 10), queryTime(c, "time_from"))
	if err != nil {
		writeInternalError(c, err)
		return
	}
	writeOK(c, failures)
}

func runID(c *app.RequestContext) (uint, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid run id %q", raw)
	}
	return uint(id), nil
}
