package service

import (
	"time"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/db"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/events"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/jenkins"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/lock"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/notify"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/storage"
	"gorm.io/gorm"
)

// Deps carries the collaborators injected into the service. Jenkins and
// Archive may be nil; the corresponding features are then disabled.
type Deps struct {
	Locker    lock.IdentityLocker
	Notifier  notify.Notifier
	Publisher events.Publisher
	Jenkins   *jenkins.Client
	Archive   storage.Archive

	// DefaultActor labels runs whose trigger cause is unresolvable.
	DefaultActor string
	// DefaultBranch labels polled runs; Jenkins rarely reports a branch.
	DefaultBranch string
	// DisplayLocation is the timezone applied when presenting instants.
	DisplayLocation *time.Location
	// BuildsPerJob bounds how many recent builds each poll cycle ingests.
	BuildsPerJob int
}

// Service owns run reconciliation, queries and Jenkins orchestration.
type Service struct {
	database  *gorm.DB
	runs      *db.RunDAO
	locker    lock.IdentityLocker
	notifier  notify.Notifier
	publisher events.Publisher
	jenkins   *jenkins.Client
	archive   storage.Archive

	defaultActor  string
	defaultBranch string
	displayLoc    *time.Location
	buildsPerJob  int
}

// NewService wires the service. Zero-value dependencies get safe fallbacks
// so tests can construct a service with only the pieces they exercise.
func NewService(database *gorm.DB, deps Deps) *Service {
	s := &Service{
		database:      database,
		runs:          db.NewRunDAO(),
		locker:        deps.Locker,
		notifier:      deps.Notifier,
		publisher:     deps.Publisher,
		jenkins:       deps.Jenkins,
		archive:       deps.Archive,
		defaultActor:  deps.DefaultActor,
		defaultBranch: deps.DefaultBranch,
		displayLoc:    deps.DisplayLocation,
		buildsPerJob:  deps.BuildsPerJob,
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedMutex()
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.notifier == nil {
		s.notifier = notify.NewMulti()
	}
	if s.defaultActor == "" {
		s.defaultActor = "unknown"
	}
	if s.defaultBranch == "" {
		s.defaultBranch = "main"
	}
	if s.displayLoc == nil {
		s.displayLoc = time.UTC
	}
	if s.buildsPerJob <= 0 {
		s.buildsPerJob = 20
	}
	return s
}

// JenkinsConfigured reports whether the polled provider is reachable.
func (s *Service) JenkinsConfigured() bool {
	return s.jenkins != nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.Event) {}
