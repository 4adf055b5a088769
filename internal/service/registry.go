package service

import (
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// DefaultSessionTTL is how long an idle session is kept
const DefaultSessionTTL = 30 * time.Minute

// Registry keeps the live sessions. A session expires once it has not been
// used for the configured TTL; expiry cancels any submission it still runs.
type Registry struct {
	sessions  *gocache.Cache
	ttl       time.Duration
	submitter Submitter
	catalogs  domain.CatalogProvider
	logger    *logrus.Logger
}

// NewRegistry creates a new session registry
func NewRegistry(submitter Submitter, catalogs domain.CatalogProvider, ttl time.Duration, logger *logrus.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = logrus.New()
	}

	sessions := gocache.New(ttl, ttl/2)
	sessions.OnEvicted(func(id string, value interface{}) {
		if session, ok := value.(*Session); ok {
			session.Close()
		}
		logger.WithField("session", id).Debug("Session expired")
	})

	return &Registry{
		sessions:  sessions,
		ttl:       ttl,
		submitter: submitter,
		catalogs:  catalogs,
		logger:    logger,
	}
}

// Create starts a new session
func (r *Registry) Create() *Session {
	session := NewSession(uuid.New().String(), r.submitter, r.catalogs, r.logger)
	r.sessions.Set(session.ID(), session, r.ttl)
	r.logger.WithField("session", session.ID()).Info("Session created")
	return session
}

// Get returns a live session and extends its lifetime
func (r *Registry) Get(id string) (*Session, bool) {
	value, found := r.sessions.Get(id)
	if !found {
		return nil, false
	}
	session := value.(*Session)
	r.sessions.Set(id, session, r.ttl)
	return session, true
}

// Delete ends a session
func (r *Registry) Delete(id string) {
	r.sessions.Delete(id)
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	return r.sessions.ItemCount()
}
