package postgres

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/journal"
)

func newTestStore(t *testing.T) *JournalStore {
	t.Helper()
	s, err := NewJournalStore(nil)
	require.NoError(t, err)
	return s
}

func TestJournalRow_SmallRequestStaysPlain(t *testing.T) {
	s := newTestStore(t)
	e := journal.Entry{ID: id.New(), Kind: journal.KindTransfer, ContainerID: 100, Request: map[string]any{"originId": 10}}

	row, err := s.toRow(e)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, row.CompressionAlgo)
	assert.JSONEq(t, `{"originId":10}`, string(row.Request))
	assert.Nil(t, row.RequestCompressed)

	back, err := s.fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, int64(100), back.ContainerID)
	assert.JSONEq(t, `{"originId":10}`, string(back.Request.(json.RawMessage)))
}

func TestJournalRow_LargeRequestIsCompressed(t *testing.T) {
	s := newTestStore(t)
	note := strings.Repeat("pallet ", 2000)
	e := journal.Entry{ID: id.New(), Kind: journal.KindEntry, Request: map[string]any{"note": note}}

	row, err := s.toRow(e)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, row.CompressionAlgo)
	assert.Nil(t, row.Request)
	assert.Less(t, len(row.RequestCompressed), len(note))

	back, err := s.fromRow(row)
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal(back.Request.(json.RawMessage), &got))
	assert.Equal(t, note, got["note"])
}

func TestJournalRow_NoRequest(t *testing.T) {
	s := newTestStore(t)
	row, err := s.toRow(journal.Entry{Kind: journal.KindScrap})
	require.NoError(t, err)

	back, err := s.fromRow(row)
	require.NoError(t, err)
	assert.Nil(t, back.Request)
}

func TestJournalListQuery(t *testing.T) {
	s := newTestStore(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := s.listQuery(journal.Filter{Kind: "transfer", ContainerID: 100, From: from, Limit: 1000, Offset: 20}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM stockflow_journal WHERE kind = $1 AND container_id = $2 AND created_at >= $3")
	assert.Contains(t, sql, "ORDER BY created_at DESC LIMIT 500 OFFSET 20")
	assert.Equal(t, []any{"transfer", int64(100), from}, args)

	sql, args, err = s.listQuery(journal.Filter{}).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "WHERE")
	assert.Contains(t, sql, "LIMIT 50")
	assert.Empty(t, args)
}
