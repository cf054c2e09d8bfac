/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	apperrors "github.com/triagectl/errwatch/internal/errors"
	"github.com/triagectl/errwatch/pkg/core/model"
	"github.com/triagectl/errwatch/pkg/core/ports"
	"github.com/triagectl/errwatch/pkg/core/triage"
	sharedmath "github.com/triagectl/errwatch/pkg/shared/math"
	"github.com/triagectl/errwatch/pkg/shared/logging"
)

const pgUniqueViolation = "23505"

// poolExecutor is the subset of *pgxpool.Pool the Store drives its queries
// through. It exists so store_test.go can substitute a narrow in-package
// fake: pgx/v5's pool talks its own wire protocol rather than going through
// database/sql, so DATA-DOG/go-sqlmock — which mocks a database/sql/driver
// connection — cannot sit underneath it the way it backs the
// database/sql-based repositories in pkg/datastorage/repository.
type poolExecutor interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store implements pkg/core/ports.Store on PostgreSQL via a pgx/v5 pool.
type Store struct {
	pool      poolExecutor
	log       *zap.Logger
	triageCfg triage.Config
}

// New constructs a Store over an already-connected pool. triageCfg is used
// only to order GetPendingInvestigation by priority, matching memstore's
// contract.
func New(pool *pgxpool.Pool, log *zap.Logger, triageCfg triage.Config) *Store {
	return &Store{pool: pool, log: log, triageCfg: triageCfg}
}

const signatureColumns = `id, fingerprint, error_type, service, message_template, stack_hash,
	first_seen, last_seen, occurrence_count, status, tags, diagnosis, revision`

func (s *Store) scanSignature(row pgx.Row) (*model.Signature, error) {
	var p model.NewSignatureParams
	var tags []string
	var diagnosisRaw []byte
	var revision int

	err := row.Scan(
		&p.ID, &p.Fingerprint, &p.ErrorType, &p.Service, &p.MessageTemplate, &p.StackHash,
		&p.FirstSeen, &p.LastSeen, &p.OccurrenceCount, &p.Status, &tags, &diagnosisRaw, &revision,
	)
	if err != nil {
		return nil, err
	}
	p.Tags = tags

	diagnosis := decodeDiagnosis(diagnosisRaw)
	sig, err := model.RestoreSignature(p, diagnosis, revision)
	if err != nil {
		return nil, apperrors.NewCorruptRecordError(p.ID, err)
	}
	return sig, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.Signature, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE id = $1`, id)
	sig, err := s.scanSignature(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("get signature by id", err)
	}
	return sig, nil
}

func (s *Store) GetByFingerprint(ctx context.Context, fingerprint string) (*model.Signature, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE fingerprint = $1`, fingerprint)
	sig, err := s.scanSignature(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("get signature by fingerprint", err)
	}
	return sig, nil
}

func (s *Store) Save(ctx context.Context, sig *model.Signature) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO signatures (id, fingerprint, error_type, service, message_template, stack_hash,
			first_seen, last_seen, occurrence_count, status, tags, diagnosis, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sig.ID(), sig.Fingerprint(), sig.ErrorType(), sig.Service(), sig.MessageTemplate(), sig.StackHash(),
		sig.FirstSeen(), sig.LastSeen(), sig.OccurrenceCount(), sig.Status(), sig.TagsSorted(),
		encodeDiagnosis(sig.Diagnosis()), sig.Revision(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperrors.NewDuplicateFingerprintError(sig.Fingerprint())
		}
		s.log.Error("insert signature failed", logging.DatabaseFields("insert", "signatures").Error(err).ToZap()...)
		return apperrors.NewStorePersistFailedError(err)
	}
	return nil
}

// Update persists sig's current state, guarded by the revision it was
// loaded at (sig.Revision()-1, since every mutating method on Signature
// increments revision in memory before Update is ever called). A
// concurrent Update between this investigator's read and write loses the
// race and gets back NewConcurrentModificationError instead of silently
// clobbering the other writer's row.
func (s *Store) Update(ctx context.Context, sig *model.Signature) error {
	expectedRevision := sig.Revision() - 1
	tag, err := s.pool.Exec(ctx, `
		UPDATE signatures SET
			last_seen = $2, occurrence_count = $3, status = $4, tags = $5, diagnosis = $6,
			revision = $7, updated_at = now()
		WHERE id = $1 AND revision = $8`,
		sig.ID(), sig.LastSeen(), sig.OccurrenceCount(), sig.Status(), sig.TagsSorted(),
		encodeDiagnosis(sig.Diagnosis()), sig.Revision(), expectedRevision,
	)
	if err != nil {
		s.log.Error("update signature failed", logging.DatabaseFields("update", "signatures").Error(err).ToZap()...)
		return apperrors.NewStorePersistFailedError(err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := s.GetByID(ctx, sig.ID())
		if getErr == nil && existing == nil {
			return apperrors.NewNotFoundError("signature")
		}
		return apperrors.NewConcurrentModificationError(sig.ID(), expectedRevision)
	}
	return nil
}

func (s *Store) GetPendingInvestigation(ctx context.Context) ([]*model.Signature, error) {
	all, err := s.queryAll(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE status IN ('NEW')`)
	if err != nil {
		return nil, err
	}

	var pending []*model.Signature
	for _, sig := range all {
		if triage.ShouldInvestigate(s.triageCfg, sig) {
			pending = append(pending, sig)
		}
	}
	now := time.Now().UTC()
	sort.Slice(pending, func(i, j int) bool {
		pi, pj := triage.Priority(now, pending[i]), triage.Priority(now, pending[j])
		if pi != pj {
			return pi > pj
		}
		return pending[i].ID() < pending[j].ID()
	})
	return pending, nil
}

func (s *Store) GetAll(ctx context.Context, status *model.Status) ([]*model.Signature, error) {
	if status == nil {
		return s.queryAll(ctx, `SELECT `+signatureColumns+` FROM signatures ORDER BY id`)
	}
	return s.queryAll(ctx, `SELECT `+signatureColumns+` FROM signatures WHERE status = $1 ORDER BY id`, *status)
}

func (s *Store) GetSimilar(ctx context.Context, sig *model.Signature, limit int) ([]*model.Signature, error) {
	return s.queryAll(ctx, `
		SELECT `+signatureColumns+` FROM signatures
		WHERE service = $1 AND error_type = $2 AND id != $3
		ORDER BY occurrence_count DESC
		LIMIT $4`,
		sig.Service(), sig.ErrorType(), sig.ID(), limit,
	)
}

func (s *Store) queryAll(ctx context.Context, sql string, args ...interface{}) ([]*model.Signature, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		s.log.Error("query signatures failed", logging.DatabaseFields("query", "signatures").Error(err).ToZap()...)
		return nil, apperrors.NewStoreUnavailableError("query signatures", err)
	}
	defer rows.Close()

	var out []*model.Signature
	for rows.Next() {
		sig, err := s.scanSignature(rows)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError("scan signature row", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("iterate signature rows", err)
	}
	return out, nil
}

func (s *Store) GetStats(ctx context.Context) (ports.Stats, error) {
	stats := ports.Stats{ByStatus: make(map[model.Status]int)}

	rows, err := s.pool.Query(ctx, `SELECT status, count(*), sum(occurrence_count) FROM signatures GROUP BY status`)
	if err != nil {
		s.log.Error("query status stats failed", logging.DatabaseFields("query", "signatures").Error(err).ToZap()...)
		return stats, apperrors.NewStoreUnavailableError("query status stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status model.Status
		var count int
		var occurrences int
		if err := rows.Scan(&status, &count, &occurrences); err != nil {
			return stats, apperrors.NewStoreUnavailableError("scan status stats", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
		stats.TotalOccurrences += occurrences
	}
	if err := rows.Err(); err != nil {
		return stats, apperrors.NewStoreUnavailableError("iterate status stats", err)
	}

	var spend *float64
	err = s.pool.QueryRow(ctx, `
		SELECT sum((diagnosis->>'costUsd')::float8)
		FROM signatures WHERE diagnosis IS NOT NULL`).Scan(&spend)
	if err != nil {
		return stats, apperrors.NewStoreUnavailableError("query estimated spend", err)
	}
	if spend != nil {
		stats.EstimatedSpendUsd = *spend
	}

	occRows, err := s.pool.Query(ctx, `SELECT occurrence_count FROM signatures`)
	if err != nil {
		s.log.Error("query occurrence counts failed", logging.DatabaseFields("query", "signatures").Error(err).ToZap()...)
		return stats, apperrors.NewStoreUnavailableError("query occurrence counts", err)
	}
	defer occRows.Close()

	var occurrences []float64
	for occRows.Next() {
		var occ int
		if err := occRows.Scan(&occ); err != nil {
			return stats, apperrors.NewStoreUnavailableError("scan occurrence count", err)
		}
		occurrences = append(occurrences, float64(occ))
	}
	if err := occRows.Err(); err != nil {
		return stats, apperrors.NewStoreUnavailableError("iterate occurrence counts", err)
	}
	stats.MeanOccurrences = sharedmath.Mean(occurrences)
	stats.OccurrenceStdDev = sharedmath.StandardDeviation(occurrences)

	return stats, nil
}

func (s *Store) Close() error {
	if c, ok := s.pool.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

