package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/handler"
)

// Register configures all HTTP routes on the server.
func Register(r *server.Hertz, runs *handler.RunHandler, webhooks *handler.WebhookHandler, jk *handler.JenkinsHandler, stream *handler.StreamHandler) {
	r.GET("/ping", handler.Ping)

	api := r.Group("/api")

	api.GET("/metrics", runs.Metrics)
	api.GET("/notifications/failed", runs.RecentFailures)

	runGroup := api.Group("/runs")
	runGroup.GET("", runs.ListRuns)
	runGroup.GET("/:id", runs.GetRun)
	runGroup.GET("/:id/logs", runs.GetRunLogs)
	runGroup.DELETE("/:id", runs.DeleteRun)

	hooks := api.Group("/webhooks")
	hooks.POST("/github", webhooks.GithubWebhook)
	hooks.POST("/jenkins", webhooks.JenkinsWebhook)
	hooks.POST("/jenkins/push", webhooks.JenkinsPushWebhook)

	jenkinsGroup := api.Group("/jenkins")
	jenkinsGroup.POST("/sync", jk.Sync)
	jenkinsGroup.GET("/jobs", jk.Jobs)
	jenkinsGroup.GET("/jobs/:name/builds", jk.JobBuilds)
	jenkinsGroup.POST("/jobs/:name/build", jk.TriggerBuild)
	jenkinsGroup.GET("/health", jk.Health)

	api.GET("/stream", stream.Stream)
}
