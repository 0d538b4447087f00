package postgres

import (
	"context"
	"fmt"
	"time"

	"stockflow/internal/core/apperror"
)

// IdempotencyStatus represents the state of a guarded submission.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// stalePending is how long a pending key may sit before another request
// may reclaim it.
const stalePending = 2 * time.Minute

// IdempotencyRecord is one stored submission.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	Operator    string            `db:"operator"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is the stored HTTP response of a finished submission.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore guards POST submissions against resubmission.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
	now       func() time.Time
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{txManager: txManager, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// AcquireKey claims key for a submission. It returns:
//   - (nil, nil) when the key was claimed by this call
//   - (replay, nil) when the submission already finished
//   - (nil, error) when another request holds the key or the key was used
//     for a different request
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, operator, operation, requestHash string) (*IdempotencyReplay, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	var record IdempotencyRecord
	var inserted bool
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO stockflow_idempotency (idempotency_key, operator, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			expires_at = GREATEST(stockflow_idempotency.expires_at, $7)
		RETURNING idempotency_key, operator, operation, status, request_hash,
			COALESCE(response, ''::bytea), response_status, response_content_type,
			created_at, updated_at, expires_at, (xmax = 0)
	`, key, operator, operation, IdempotencyStatusPending, requestHash, now, expiresAt).Scan(
		&record.Key, &record.Operator, &record.Operation, &record.Status,
		&record.RequestHash, &record.Response, &record.StatusCode, &record.ContentType,
		&record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt, &inserted,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}
	return s.resolve(ctx, key, operator, operation, requestHash, record, now)
}

func (s *IdempotencyStore) resolve(ctx context.Context, key, operator, operation, requestHash string, record IdempotencyRecord, now time.Time) (*IdempotencyReplay, error) {
	if record.Operator != operator || record.Operation != operation || record.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", operation)
	}

	switch record.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return replayOf(record), nil

	case IdempotencyStatusPending:
		if now.Sub(record.UpdatedAt) <= stalePending {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
			UPDATE stockflow_idempotency
			SET updated_at = $1
			WHERE idempotency_key = $2 AND status = $3 AND updated_at = $4
		`, now, key, IdempotencyStatusPending, record.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		return nil, nil
	}
	return nil, nil
}

func replayOf(r IdempotencyRecord) *IdempotencyReplay {
	status := r.StatusCode
	if status == 0 {
		status = 200
	}
	ct := r.ContentType
	if ct == "" {
		ct = "application/json"
	}
	return &IdempotencyReplay{StatusCode: status, ContentType: ct, Body: r.Response}
}

// CompleteKey stores the response of a finished submission. Failed
// submissions are stored and replayed as well.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	status := IdempotencyStatusSuccess
	if statusCode >= 400 {
		status = IdempotencyStatusFailed
	}
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE stockflow_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6
	`, status, body, statusCode, contentType, s.now(), key)
	return err
}

// ReleaseKey forgets a pending key, for submissions that never reached the
// ERP.
func (s *IdempotencyStore) ReleaseKey(ctx context.Context, key string) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM stockflow_idempotency WHERE idempotency_key = $1 AND status = $2
	`, key, IdempotencyStatusPending)
	return err
}

// CleanupExpired removes expired records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM stockflow_idempotency WHERE expires_at < $1
	`, s.now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
