package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/service"
)

// WebhookHandler ingests push notifications from both providers.
type WebhookHandler struct {
	svc *service.Service
}

func NewWebhookHandler(svc *service.Service) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// GithubWebhook accepts the structured push payload. GitHub submissions
// carry no build number, so each accepted payload inserts a fresh record.
func (h *WebhookHandler) GithubWebhook(ctx context.Context, c *app.RequestContext) {
	h.pushWebhook(ctx, c, model.ProviderGitHub)
}

// JenkinsPushWebhook accepts the same structured shape labelled jenkins,
// for pipelines that post their own completion notifications.
func (h *WebhookHandler) JenkinsPushWebhook(ctx context.Context, c *app.RequestContext) {
	h.pushWebhook(ctx, c, model.ProviderJenkins)
}

func (h *WebhookHandler) pushWebhook(ctx context.Context, c *app.RequestContext, provider string) {
	var payload service.PushPayload
	if err := json.Unmarshal(c.Request.Body(), &payload); err != nil {
		writeBadRequest(c, fmt.Errorf("invalid payload: %w", err))
		return
	}

	obs, err := service.ObservationFromPush(provider, &payload)
	if err != nil {
		writeBadRequest(c, err)
		return
	}

	result, err := h.svc.Reconcile(ctx, obs)
	if err != nil {
		writeInternalError(c, err)
		return
	}
	writeOK(c, result.Run)
}

// JenkinsWebhook accepts Jenkins' provider-native notification envelope,
// extracts an observation, enriches it from the build details API when
// available and reconciles it into the run history.
func (h *WebhookHandler) JenkinsWebhook(ctx context.Context, c *app.RequestContext) {
	obs, err := service.ExtractJenkinsWebhook(c.Request.Body())
	if err != nil {
		hlog.Warnf("rejected jenkins webhook: %v", err)
		writeBadRequest(c, err)
		return
	}

	h.svc.EnrichJenkinsObservation(ctx, obs)

	result, err := h.svc.Reconcile(ctx, obs)
	if err != nil {
		if errors.Is(err, service.ErrBuildNumberMissing) {
			writeBadRequest(c, err)
			return
		}
		writeInternalError(c, err)
		return
	}

	writeOK(c, map[string]interface{}{
		"run":        result.Run,
		"created":    result.Created,
		"transition": result.Transition,
	})
}
