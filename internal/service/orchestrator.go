package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cnv-acmg-classifier/internal/domain"
)

// DefaultCallTimeout bounds each backend call of a submission.
const DefaultCallTimeout = 180 * time.Second

// riskSlot is the index of the risk call among the fan-out outcomes.
const riskSlot = domain.SectionCount

// Orchestrator issues the six evaluation calls of a locus submission and
// collects them into one snapshot.
type Orchestrator struct {
	backend     domain.EvaluationBackend
	callTimeout time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

// NewOrchestrator creates a new orchestrator. A zero callTimeout uses
// DefaultCallTimeout.
func NewOrchestrator(backend domain.EvaluationBackend, callTimeout time.Duration, logger *logrus.Logger) *Orchestrator {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		backend:     backend,
		callTimeout: callTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// CallTimeout returns the per-call timeout
func (o *Orchestrator) CallTimeout() time.Duration {
	return o.callTimeout
}

// Submit evaluates all five ACMG sections and the risk model for the locus.
//
// The calls run concurrently and each has its own timeout; one slow or failing
// call never cancels the others. Submit returns only after all six settle.
// The snapshot is returned only when every call succeeded, otherwise the
// error is a *domain.SubmissionError.
func (o *Orchestrator) Submit(ctx context.Context, locus domain.Locus) (*domain.Snapshot, error) {
	if err := locus.Validate(); err != nil {
		return nil, err
	}

	start := o.now()
	logger := o.logger.WithFields(logrus.Fields{
		"region":       locus.Region(),
		"variant_kind": locus.VariantKind,
	})
	logger.Info("Submitting CNV for evaluation")

	var (
		sections domain.SectionResults
		risk     *domain.RiskEstimate
		errs     [domain.SectionCount + 1]error
	)

	var g errgroup.Group
	for id := 1; id <= domain.SectionCount; id++ {
		id := id
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
			defer cancel()

			callStart := time.Now()
			result, err := o.backend.EvaluateSection(callCtx, id, locus)
			o.logCall(logger.WithField("section", id), callStart, err)
			if err == nil && result == nil {
				err = errors.New("empty section result")
			}
			if err != nil {
				errs[id-1] = err
				return err
			}
			result.Section = id
			sections[id-1] = *result
			return nil
		})
	}
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()

		callStart := time.Now()
		estimate, err := o.backend.EvaluateRisk(callCtx, locus)
		o.logCall(logger.WithField("section", "risk"), callStart, err)
		if err == nil && estimate == nil {
			err = errors.New("empty risk estimate")
		}
		if err != nil {
			errs[riskSlot] = err
			return err
		}
		risk = estimate
		return nil
	})
	// The group has no shared context, so Wait only reports the first failure
	// once every call has settled. errs keeps the rest for the report.
	if err := g.Wait(); err != nil {
		failure := submissionError(errs)
		logger.WithFields(logrus.Fields{
			"failed":   failure.Failed(),
			"duration": time.Since(start).String(),
			"error":    failure.Message,
		}).Warn("CNV evaluation failed")
		return nil, failure
	}

	logger.WithField("duration", time.Since(start).String()).Info("CNV evaluation completed")
	return &domain.Snapshot{
		Locus:      locus,
		Sections:   sections,
		Risk:       *risk,
		AcceptedAt: o.now(),
	}, nil
}

func (o *Orchestrator) logCall(entry *logrus.Entry, start time.Time, err error) {
	entry = entry.WithField("duration", time.Since(start).String())
	if err == nil {
		entry.Debug("Backend call succeeded")
		return
	}

	var callErr *domain.CallError
	if errors.As(err, &callErr) {
		entry = entry.WithFields(logrus.Fields{
			"endpoint": callErr.Endpoint,
			"kind":     callErr.Kind,
		})
	}
	entry.WithError(err).Debug("Backend call failed")
}

// submissionError picks the representative failure: the first section error
// in section order with a non-empty message, else the risk error. It returns
// nil when all calls succeeded.
func submissionError(errs [domain.SectionCount + 1]error) *domain.SubmissionError {
	var (
		calls   []*domain.CallError
		message string
		failed  bool
	)

	for _, err := range errs {
		if err == nil {
			continue
		}
		failed = true
		calls = append(calls, asCallError(err))
	}
	if !failed {
		return nil
	}

	for i := 0; i < domain.SectionCount; i++ {
		if errs[i] != nil && errs[i].Error() != "" {
			message = errs[i].Error()
			break
		}
	}
	if message == "" && errs[riskSlot] != nil {
		message = errs[riskSlot].Error()
	}
	if message == "" {
		message = "CNV evaluation failed"
	}

	return &domain.SubmissionError{Message: message, Calls: calls}
}

func asCallError(err error) *domain.CallError {
	var callErr *domain.CallError
	if errors.As(err, &callErr) {
		return callErr
	}
	return domain.NewCallError(domain.CallTransport, "", "", 0, err.Error(), err)
}
