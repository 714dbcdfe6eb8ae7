package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/service"
)

// JenkinsHandler exposes the polled-provider operations: manual sync, job
// listings, build passthrough, triggering and the connectivity probe.
type JenkinsHandler struct {
	svc *service.Service
}

func NewJenkinsHandler(svc *service.Service) *JenkinsHandler {
	return &JenkinsHandler{svc: svc}
}

// Sync runs one fetch-and-reconcile cycle over all known jobs on demand.
func (h *JenkinsHandler) Sync(ctx context.Context, c *app.RequestContext) {
	created, err := h.svc.SyncJenkins(ctx)
	if err != nil {
		if errors.Is(err, service.ErrJenkinsDisabled) {
			writeBadRequest(c, err)
			return
		}
		writeInternalError(c, err)
		return
	}
	writeOK(c, map[string]interface{}{
		"message": fmt.Sprintf("synced %d new jenkins builds", created),
		"created": created,
	})
}

// Jobs lists live job summaries straight from Jenkins.
func (h *JenkinsHandler) Jobs(ctx context.Context, c *app.RequestContext) {
	summaries, err := h.svc.JobSummaries(ctx)
	if err != nil {
		if errors.Is(err, service.ErrJenkinsDisabled) {
			writeBadRequest(c, err)
			return
		}
		writeInternalError(c, err)
		return
	}
	writeOK(c, summaries)
}

// JobBuilds passes through recent builds of one job.
func (h *JenkinsHandler) JobBuilds(ctx context.Context, c *app.RequestContext) {
	jobName := c.Param("name")
	builds, err := h.svc.JobBuilds(ctx, jobName, queryInt(c, "limit", 10))
	if err != nil {
		if errors.Is(err, service.ErrJenkinsDisabled) {
			writeBadRequest(c, err)
			return
		}
		writeInternalError(c, err)
		return
	}
	writeOK(c, map[string]interface{}{
		"job_name": jobName,
		"builds":   builds,
	})
}

// TriggerBuild starts a build, with optional JSON body of string
// parameters.
func (h *JenkinsHandler) TriggerBuild(ctx context.Context, c *app.RequestContext) {
	jobName := c.Param("name")

	var params map[string]string
	if body := c.Request.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			writeBadRequest(c, fmt.Errorf("invalid parameters: %w", err))
			return
		}
	}

	if err := h.svc.TriggerJenkinsBuild(ctx, jobName, params); err != nil {
		if errors.Is(err, service.ErrJenkinsDisabled) {
			writeBadRequest(c, err)
			return
		}
		writeInternalError(c, err)
		return
	}
	writeOK(c, map[string]string{
		"message": fmt.Sprintf("build triggered for job %s", jobName),
	})
}

// Health reports provider connectivity.
func (h *JenkinsHandler) Health(ctx context.Context, c *app.RequestContext) {
	info, err := h.svc.JenkinsHealth(ctx)
	if err != nil {
		writeOK(c, map[string]interface{}{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}
	writeOK(c, map[string]interface{}{
		"status":          "healthy",
		"jenkins_version": info.Version,
		"node_name":       info.NodeName,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}
