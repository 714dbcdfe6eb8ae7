package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/jenkins"
)

var (
	ErrPayloadUnrecognized = errors.New("unrecognized webhook payload shape")
	ErrPipelineNameMissing = errors.New("pipeline name is required")
	ErrBuildNumberMissing  = errors.New("build number could not be resolved")
)

// Observation is one reported snapshot of a run, normalized from either a
// webhook payload or a polled build object. BuildNumber is nil only for
// push-sourced runs with no native numbering; such observations are never
// deduplicated.
type Observation struct {
	Provider        string
	PipelineName    string
	BuildNumber     *int
	Status          string
	StartedAt       *time.Time
	FinishedAt      *time.Time
	DurationSeconds *float64
	Branch          string
	TriggeredBy     string
	URL             string
	Logs            string
}

// PushPayload is the structured submission accepted on the push webhook
// endpoints. Commit carries the triggering actor by dashboard convention.
type PushPayload struct {
	PipelineName string     `json:"pipeline_name"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	Commit       string     `json:"commit"`
	Branch       string     `json:"branch"`
	URL          string     `json:"url"`
	Logs         string     `json:"logs"`
}

// ObservationFromPush normalizes a structured push submission. A build
// number is derived from the trailing URL segment when present; without
// one the observation has no identity and is inserted fresh on every
// accepted submission.
func ObservationFromPush(provider string, p *PushPayload) (*Observation, error) {
	if p == nil || strings.TrimSpace(p.PipelineName) == "" {
		return nil, ErrPipelineNameMissing
	}
	var number *int
	if n, ok := BuildNumberFromURL(p.URL); ok {
		number = &n
	}
	return &Observation{
		BuildNumber:     number,
		Provider:        provider,
		PipelineName:    strings.TrimSpace(p.PipelineName),
		Status:          NormalizeStatus(p.Status),
		StartedAt:       p.StartedAt,
		FinishedAt:      p.FinishedAt,
		DurationSeconds: ComputeDuration(p.StartedAt, p.FinishedAt),
		Branch:          p.Branch,
		TriggeredBy:     p.Commit,
		URL:             p.URL,
		Logs:            p.Logs,
	}, nil
}

// jenkinsEnvelope covers the two notification shapes Jenkins plugins emit:
// a build-wrapped shape where the job name hides inside full_url, and a
// flatter shape with the name at top level.
type jenkinsEnvelope struct {
	Name  string         `json:"name"`
	Build *envelopeBuild `json:"build"`
}

type envelopeBuild struct {
	Number    *int   `json:"number"`
	Phase     string `json:"phase"`
	Status    string `json:"status"`
	Timestamp *int64 `json:"timestamp"`
	Duration  *int64 `json:"duration"`
	FullURL   string `json:"full_url"`
}

// ExtractJenkinsWebhook parses a provider-native Jenkins notification into
// an observation. Unrecognized shapes and envelopes without a resolvable
// build number are rejected with a diagnostic error; nothing is persisted.
func ExtractJenkinsWebhook(payload []byte) (*Observation, error) {
	var env jenkinsEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadUnrecognized, err)
	}
	if env.Build == nil {
		return nil, fmt.Errorf("%w: missing build object", ErrPayloadUnrecognized)
	}

	jobName := strings.TrimSpace(env.Name)
	if jobName == "" {
		jobName = jobNameFromURL(env.Build.FullURL)
	}
	if jobName == "" {
		return nil, fmt.Errorf("%w: job name not present in payload or full_url", ErrPipelineNameMissing)
	}

	number := env.Build.Number
	if number == nil {
		if n, ok := BuildNumberFromURL(env.Build.FullURL); ok {
			number = &n
		}
	}
	if number == nil {
		return nil, fmt.Errorf("%w: envelope for job %s", ErrBuildNumberMissing, jobName)
	}

	obs := &Observation{
		Provider:     "jenkins",
		PipelineName: jobName,
		BuildNumber:  number,
		Status:       NormalizeStatus(env.Build.Status),
	}
	if env.Build.Timestamp != nil {
		started := EpochMillis(*env.Build.Timestamp)
		obs.StartedAt = &started
	}
	if env.Build.Duration != nil && *env.Build.Duration > 0 {
		secs := MillisToSeconds(*env.Build.Duration)
		obs.DurationSeconds = &secs
	}
	if env.Build.FullURL != "" {
		obs.URL = CanonicalBuildURL(env.Build.FullURL, *number)
	}
	deriveFinishedAt(obs)
	return obs, nil
}

// jobNameFromURL pulls the job name out of a Jenkins build URL such as
// "http://host/job/Deploy/42/".
func jobNameFromURL(rawURL string) string {
	const marker = "/job/"
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+len(marker):]
	if cut := strings.IndexByte(rest, '/'); cut >= 0 {
		rest = rest[:cut]
	}
	return rest
}

// observationFromBuild normalizes one polled build object. The observation
// is rejected when no build number is derivable: without a stable number
// the build cannot be deduplicated or safely merged.
func (s *Service) observationFromBuild(jobName string, b *jenkins.Build) (*Observation, error) {
	if jobName == "" {
		return nil, ErrPipelineNameMissing
	}

	number := b.Number
	if number == 0 {
		n, ok := BuildNumberFromURL(b.URL)
		if !ok {
			return nil, fmt.Errorf("%w: job %s, url %q", ErrBuildNumberMissing, jobName, b.URL)
		}
		number = n
	}

	obs := &Observation{
		Provider:     "jenkins",
		PipelineName: jobName,
		BuildNumber:  &number,
		Status:       NormalizeStatus(b.Result),
		Branch:       s.defaultBranch,
		TriggeredBy:  s.buildActor(b),
	}
	if b.Timestamp > 0 {
		started := EpochMillis(b.Timestamp)
		obs.StartedAt = &started
	}
	if b.Duration > 0 {
		secs := MillisToSeconds(b.Duration)
		obs.DurationSeconds = &secs
	}
	if b.URL != "" {
		obs.URL = CanonicalBuildURL(b.URL, number)
	}
	deriveFinishedAt(obs)
	return obs, nil
}

// deriveFinishedAt fills the finish instant for terminal builds where only
// start and duration are known.
func deriveFinishedAt(obs *Observation) {
	if obs.FinishedAt != nil || obs.StartedAt == nil || obs.DurationSeconds == nil {
		return
	}
	if obs.Status == StatusRunning {
		return
	}
	finished := obs.StartedAt.Add(time.Duration(*obs.DurationSeconds * float64(time.Second)))
	obs.FinishedAt = &finished
}

// buildActor resolves who triggered a build. The upstream API nests trigger
// metadata differently per cause type, so the lookup walks the top-level
// causes list first, then actions and their nested causes, preferring an
// explicit user id over a user name over the free-text description. Falls
// back to the configured default actor.
func (s *Service) buildActor(b *jenkins.Build) string {
	for _, cause := range b.Causes {
		if actor := actorFromCause(cause); actor != "" {
			return actor
		}
	}
	for _, action := range b.Actions {
		if action.UserID != "" {
			return action.UserID
		}
		if action.UserName != "" {
			return action.UserName
		}
		for _, cause := range action.Causes {
			if actor := actorFromCause(cause); actor != "" {
				return actor
			}
		}
	}
	return s.defaultActor
}

func actorFromCause(cause jenkins.Cause) string {
	if cause.UserID != "" {
		return cause.UserID
	}
	if cause.UserName != "" {
		return cause.UserName
	}
	return parseStartedByUser(cause.ShortDescription)
}

// parseStartedByUser extracts the actor from descriptions like
// "Started by user admin".
func parseStartedByUser(desc string) string {
	const prefix = "Started by user"
	if !strings.Contains(desc, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.Replace(desc, prefix, "", 1))
}
