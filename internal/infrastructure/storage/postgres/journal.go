package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/journal"
	"stockflow/internal/domain/workflow"
)

// CompressionAlgo specifies how a stored payload is encoded.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const (
	journalTable      = "stockflow_journal"
	journalPhaseTable = "stockflow_journal_phase"

	defaultCompressThreshold = 8 * 1024
	defaultListLimit         = 50
	maxListLimit             = 500
)

var _ journal.Store = (*JournalStore)(nil)

// journalRow is the stored form of journal.Entry.
type journalRow struct {
	ID                id.ID           `db:"id"`
	Kind              string          `db:"kind"`
	ContainerID       int64           `db:"container_id"`
	Reference         string          `db:"reference"`
	State             string          `db:"state"`
	Warning           string          `db:"warning"`
	Error             string          `db:"error"`
	Operator          string          `db:"operator"`
	Request           json.RawMessage `db:"request"`
	RequestCompressed []byte          `db:"request_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

type phaseRow struct {
	JournalID  id.ID           `db:"journal_id"`
	Seq        int             `db:"seq"`
	Phase      string          `db:"phase"`
	Status     workflow.Status `db:"status"`
	Reason     string          `db:"reason"`
	Error      string          `db:"error"`
	DurationMs int64           `db:"duration_ms"`
}

var (
	journalColumns = ExtractDBColumns[journalRow]()
	phaseColumns   = ExtractDBColumns[phaseRow]()
)

// JournalStore keeps orchestration runs in PostgreSQL.
type JournalStore struct {
	txManager         *TxManager
	batch             *BatchInserter
	builder           squirrel.StatementBuilderType
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewJournalStore creates a JournalStore.
func NewJournalStore(txManager *TxManager) (*JournalStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &JournalStore{
		txManager:         txManager,
		batch:             NewBatchInserter(txManager),
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// Record stores the entry and its phases in one transaction.
func (s *JournalStore) Record(ctx context.Context, e journal.Entry) error {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	row, err := s.toRow(e)
	if err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sql, args, err := s.builder.Insert(journalTable).SetMap(StructToMap(row)).ToSql()
		if err != nil {
			return fmt.Errorf("build journal insert: %w", err)
		}
		if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert journal entry: %w", err)
		}

		if len(e.Phases) == 0 {
			return nil
		}
		rows := make([][]any, 0, len(e.Phases))
		for i, p := range e.Phases {
			pr := phaseRow{
				JournalID:  e.ID,
				Seq:        i + 1,
				Phase:      p.Phase,
				Status:     p.Status,
				Reason:     p.Reason,
				Error:      p.Error,
				DurationMs: p.DurationMs,
			}
			m := StructToMap(pr)
			values := make([]any, len(phaseColumns))
			for j, col := range phaseColumns {
				values[j] = m[col]
			}
			rows = append(rows, values)
		}
		if _, err := s.batch.CopyFromSlice(ctx, journalPhaseTable, phaseColumns, rows); err != nil {
			return fmt.Errorf("insert journal phases: %w", err)
		}
		return nil
	})
}

// List returns entries matching f, newest first, with their phases.
func (s *JournalStore) List(ctx context.Context, f journal.Filter) ([]journal.Entry, error) {
	sql, args, err := s.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build journal query: %w", err)
	}

	querier := s.txManager.GetQuerier(ctx)
	var rows []journalRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select journal: %w", err)
	}
	if len(rows) == 0 {
		return []journal.Entry{}, nil
	}

	ids := make([]id.ID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	phaseSQL, phaseArgs, err := s.builder.
		Select(phaseColumns...).
		From(journalPhaseTable).
		Where(squirrel.Eq{"journal_id": ids}).
		OrderBy("journal_id", "seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build phase query: %w", err)
	}
	var phases []phaseRow
	if err := pgxscan.Select(ctx, querier, &phases, phaseSQL, phaseArgs...); err != nil {
		return nil, fmt.Errorf("select journal phases: %w", err)
	}
	byEntry := make(map[id.ID][]workflow.PhaseOutcome, len(rows))
	for _, p := range phases {
		byEntry[p.JournalID] = append(byEntry[p.JournalID], workflow.PhaseOutcome{
			Phase:      p.Phase,
			Status:     p.Status,
			Reason:     p.Reason,
			Error:      p.Error,
			DurationMs: p.DurationMs,
		})
	}

	out := make([]journal.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := s.fromRow(r)
		if err != nil {
			return nil, err
		}
		e.Phases = byEntry[r.ID]
		out = append(out, e)
	}
	return out, nil
}

func (s *JournalStore) listQuery(f journal.Filter) squirrel.SelectBuilder {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := s.builder.Select(journalColumns...).From(journalTable)
	if f.Kind != "" {
		q = q.Where(squirrel.Eq{"kind": f.Kind})
	}
	if f.ContainerID > 0 {
		q = q.Where(squirrel.Eq{"container_id": f.ContainerID})
	}
	if !f.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"created_at": f.From})
	}
	if !f.To.IsZero() {
		q = q.Where(squirrel.Lt{"created_at": f.To})
	}
	q = q.OrderBy("created_at DESC").Limit(uint64(limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func (s *JournalStore) toRow(e journal.Entry) (journalRow, error) {
	row := journalRow{
		ID:              e.ID,
		Kind:            e.Kind,
		ContainerID:     e.ContainerID,
		Reference:       e.Reference,
		State:           e.State,
		Warning:         e.Warning,
		Error:           e.Error,
		Operator:        e.Operator,
		CompressionAlgo: CompressionNone,
		CreatedAt:       e.CreatedAt,
	}
	if e.Request == nil {
		return row, nil
	}
	payload, err := json.Marshal(e.Request)
	if err != nil {
		return row, fmt.Errorf("marshal journal request: %w", err)
	}
	if len(payload) > s.compressThreshold {
		row.RequestCompressed = s.encoder.EncodeAll(payload, nil)
		row.CompressionAlgo = CompressionZstd
		return row, nil
	}
	row.Request = payload
	return row, nil
}

func (s *JournalStore) fromRow(r journalRow) (journal.Entry, error) {
	e := journal.Entry{
		ID:          r.ID,
		Kind:        r.Kind,
		ContainerID: r.ContainerID,
		Reference:   r.Reference,
		State:       r.State,
		Warning:     r.Warning,
		Error:       r.Error,
		Operator:    r.Operator,
		CreatedAt:   r.CreatedAt,
	}
	switch {
	case r.CompressionAlgo == CompressionZstd && len(r.RequestCompressed) > 0:
		payload, err := s.decoder.DecodeAll(r.RequestCompressed, nil)
		if err != nil {
			return e, fmt.Errorf("decompress journal request: %w", err)
		}
		e.Request = json.RawMessage(payload)
	case len(r.Request) > 0:
		e.Request = r.Request
	}
	return e, nil
}
