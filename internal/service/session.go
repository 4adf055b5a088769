package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// Submitter runs one locus submission to completion
type Submitter interface {
	Submit(ctx context.Context, locus domain.Locus) (*domain.Snapshot, error)
}

// Session owns the state of one CNV query: the accepted snapshot, the user's
// per-section picks and the combination strategy.
//
// A newer submission always wins. Starting one cancels the fan-out still in
// flight, and a fan-out that completes after a newer one started is dropped.
type Session struct {
	id        string
	submitter Submitter
	catalogs  domain.CatalogProvider
	logger    *logrus.Logger
	createdAt time.Time

	snapshot   atomic.Pointer[domain.Snapshot]
	generation atomic.Uint64

	mu       sync.Mutex
	cancel   context.CancelFunc
	picks    map[int]string
	strategy domain.CombinationStrategy
	lastErr  error
}

// NewSession creates an empty session using the Balanced strategy
func NewSession(id string, submitter Submitter, catalogs domain.CatalogProvider, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		id:        id,
		submitter: submitter,
		catalogs:  catalogs,
		logger:    logger,
		createdAt: time.Now(),
		picks:     make(map[int]string),
		strategy:  domain.StrategyBalanced,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was created
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Snapshot returns the accepted snapshot, or nil before the first success
func (s *Session) Snapshot() *domain.Snapshot {
	return s.snapshot.Load()
}

// LastError returns the failure of the latest submission, if it failed
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Submit evaluates the locus and adopts the result.
//
// On failure the previous snapshot stays in place and the error is kept as
// LastError. A submission overtaken by a newer one returns
// domain.ErrSuperseded and changes nothing. Adopting a snapshot clears the
// picks because they referred to the previous server defaults.
func (s *Session) Submit(ctx context.Context, locus domain.Locus) (*domain.Snapshot, error) {
	if err := locus.Validate(); err != nil {
		return nil, err
	}

	fanCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	gen := s.generation.Add(1)
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	snapshot, err := s.submitter.Submit(fanCtx, locus)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation.Load() != gen {
		cancel()
		s.logger.WithFields(logrus.Fields{
			"session":    s.id,
			"generation": gen,
			"region":     locus.Region(),
		}).Info("Dropping superseded submission")
		return nil, domain.ErrSuperseded
	}
	cancel()
	s.cancel = nil

	if err != nil {
		s.lastErr = err
		return nil, err
	}

	snapshot.Generation = gen
	s.snapshot.Store(snapshot)
	s.picks = make(map[int]string)
	s.lastErr = nil
	return snapshot, nil
}

// SetPick selects an evidence option for a section of the current snapshot.
// An empty label restores the server's choice.
func (s *Session) SetPick(ctx context.Context, section int, label string) error {
	if !domain.IsValidSection(section) {
		return domain.NewValidationError("section", "must be between 1 and 5", section)
	}

	snapshot := s.snapshot.Load()
	if snapshot == nil {
		return domain.ErrNoSnapshot
	}

	if label != "" && label != snapshot.Sections[section-1].Option {
		catalog, err := s.catalogs.Options(ctx, snapshot.Locus.VariantKind)
		if err != nil {
			return err
		}
		if _, ok := catalog.Find(section, label); !ok {
			return fmt.Errorf("%w: %q in section %d", domain.ErrUnknownOption, label, section)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot.Load() != snapshot {
		return domain.ErrSuperseded
	}
	if label == "" {
		delete(s.picks, section)
	} else {
		s.picks[section] = label
	}
	return nil
}

// ClearPicks restores the server's choice for every section
func (s *Session) ClearPicks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.picks = make(map[int]string)
}

// SetStrategy changes the combination strategy
func (s *Session) SetStrategy(strategy domain.CombinationStrategy) error {
	if !strategy.IsValid() {
		return domain.NewValidationError("strategy", "weight must be 0, 1.1 or 2.2", float64(strategy))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = strategy
	return nil
}

// Strategy returns the current combination strategy
func (s *Session) Strategy() domain.CombinationStrategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// View renders the session's current state
func (s *Session) View(ctx context.Context) (*View, error) {
	s.mu.Lock()
	snapshot := s.snapshot.Load()
	picks := make(map[int]string, len(s.picks))
	for k, v := range s.picks {
		picks[k] = v
	}
	strategy := s.strategy
	lastErr := s.lastErr
	s.mu.Unlock()

	// Without picks the server defaults score on their own, so a catalog
	// outage only costs the option list.
	var catalog domain.EvidenceCatalog
	if snapshot != nil {
		var err error
		catalog, err = s.catalogs.Options(ctx, snapshot.Locus.VariantKind)
		if err != nil {
			if len(picks) > 0 {
				return nil, err
			}
			s.logger.WithError(err).WithField("session", s.id).Warn("Evidence catalog unavailable, showing server defaults")
			catalog = nil
		}
	}

	view, err := BuildView(snapshot, catalog, picks, strategy)
	if err != nil {
		return nil, err
	}
	view.SessionID = s.id
	if lastErr != nil {
		view.Error = lastErr.Error()
	}
	return view, nil
}

// Close cancels any submission still in flight
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// IsSuperseded reports whether err means a newer submission took over
func IsSuperseded(err error) bool {
	return errors.Is(err, domain.ErrSuperseded)
}
