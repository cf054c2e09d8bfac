// Package poll implements one poll cycle per spec.md §4.6: fetch errors,
// fingerprint, upsert signatures, mark candidates pending.
package poll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/pkg/core/fingerprint"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/ports"
)

// Result is the summary of one pollOnce() call.
type Result struct {
	ErrorsFound       int
	NewSignatures     int
	UpdatedSignatures int
	FailedEvents      int
}

// Service runs poll cycles against a Telemetry source and a Store.
type Service struct {
	telemetry     ports.Telemetry
	store         ports.Store
	fingerprinter *fingerprint.Fingerprinter
	batchSize     int
	lookback      time.Duration
	services      []string
	logger        *zap.Logger
}

// New constructs a poll Service.
func New(telemetry ports.Telemetry, store ports.Store, fingerprinter *fingerprint.Fingerprinter, batchSize int, lookback time.Duration, services []string, logger *zap.Logger) *Service {
	return &Service{
		telemetry: telemetry, store: store, fingerprinter: fingerprinter,
		batchSize: batchSize, lookback: lookback, services: services, logger: logger,
	}
}

// PollOnce runs one cycle: fetch since now-lookback, fingerprint and
// upsert each event independently. A per-event failure is logged and does
// not abort the loop; only a failure of the initial telemetry fetch fails
// the whole cycle.
func (s *Service) PollOnce(ctx context.Context, now time.Time) (Result, error) {
	since := now.Add(-s.lookback)

	events, err := s.telemetry.GetRecentErrors(ctx, since, s.services)
	if err != nil {
		return Result{}, apperrors.NewTelemetryUnavailableError("getRecentErrors", err)
	}
	if len(events) > s.batchSize {
		events = events[:s.batchSize]
	}

	var result Result
	result.ErrorsFound = len(events)

	for _, event := range events {
		if err := s.processEvent(ctx, event, &result); err != nil {
			result.FailedEvents++
			s.logger.Warn("failed to process error event",
				zap.String("service", event.Service),
				zap.String("error_type", event.ErrorType),
				zap.Error(err))
		}
	}

	return result, nil
}

func (s *Service) processEvent(ctx context.Context, event model.ErrorEvent, result *Result) error {
	fp := s.fingerprinter.Fingerprint(event)

	existing, err := s.store.GetByFingerprint(ctx, fp)
	if err != nil {
		return apperrors.NewStoreUnavailableError("getByFingerprint", err)
	}

	if existing == nil {
		sig, err := s.newSignature(fp, event)
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, sig); err != nil {
			if apperrors.IsType(err, apperrors.ErrorTypeDuplicateFingerprint) {
				// Lost a save race: re-read and fall through to the
				// existing-signature path per spec.md §4.6 step 3.
				existing, rereadErr := s.store.GetByFingerprint(ctx, fp)
				if rereadErr != nil || existing == nil {
					return apperrors.NewStoreUnavailableError("getByFingerprint(after race)", rereadErr)
				}
				return s.recordOccurrence(ctx, existing, event, result)
			}
			return apperrors.NewStorePersistFailedError(err)
		}
		result.NewSignatures++
		return nil
	}

	return s.recordOccurrence(ctx, existing, event, result)
}

func (s *Service) newSignature(fp string, event model.ErrorEvent) (*model.Signature, error) {
	return model.NewSignature(model.NewSignatureParams{
		ID:              uuid.NewString(),
		Fingerprint:     fp,
		ErrorType:       event.ErrorType,
		Service:         event.Service,
		MessageTemplate: s.fingerprinter.TemplatizeMessage(event.ErrorMessage),
		StackHash:       s.fingerprinter.StackHash(event.StackFrames),
		FirstSeen:       event.Timestamp,
		LastSeen:        event.Timestamp,
		OccurrenceCount: 1,
		Status:          model.StatusNew,
	})
}

func (s *Service) recordOccurrence(ctx context.Context, sig *model.Signature, event model.ErrorEvent, result *Result) error {
	if err := sig.RecordOccurrence(event.Timestamp); err != nil {
		return err
	}
	if err := s.store.Update(ctx, sig); err != nil {
		return apperrors.NewStorePersistFailedError(err)
	}
	result.UpdatedSignatures++
	return nil
}
