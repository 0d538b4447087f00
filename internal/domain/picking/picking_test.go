package picking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/erp"
	"stockflow/internal/erp/erptest"
	"stockflow/pkg/logger"
)

func TestStateLabel(t *testing.T) {
	assert.Equal(t, "Ready", StateAssigned.Label())
	assert.Equal(t, "Waiting another operation", StateWaiting.Label())
	assert.Equal(t, "unknown", State("").Label())
	assert.Equal(t, "in_review", State("in_review").Label())
}

func TestResolveType_TriesDomainsInOrder(t *testing.T) {
	fake := erptest.New().
		Returns(ModelType, "search_read", []map[string]any{}).
		Returns(ModelType, "search_read", []map[string]any{{"id": 9}})

	id, err := NewOps(fake, "").ResolveType(context.Background(), "internal",
		erp.Domain{erp.Cond("code", "=", "internal"), erp.Cond("default_location_src_id", "=", 4)},
		erp.Domain{erp.Cond("code", "=", "internal")})
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Len(t, fake.Calls(), 2)
}

func TestResolveType_NoneIsConfigurationError(t *testing.T) {
	fake := erptest.New().Returns(ModelType, "search_read", []map[string]any{})

	_, err := NewOps(fake, "").ResolveType(context.Background(), "incoming", erp.Domain{})
	assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration))
}

func TestCreate_OmitsEmptyText(t *testing.T) {
	fake := erptest.New().Returns(ModelPicking, "create", []int64{42})

	id, err := NewOps(fake, "").Create(context.Background(), Header{TypeID: 1, SourceID: 2, DestID: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	values := fake.Calls()[0].Args[0].(map[string]any)
	assert.NotContains(t, values, "origin")
	assert.NotContains(t, values, "note")
}

func TestCreateMove_PriceUnitOnlyWhenSet(t *testing.T) {
	fake := erptest.New().Returns(ModelMove, "create", 7)
	ops := NewOps(fake, "")

	_, err := ops.CreateMove(context.Background(), Move{Name: "A", ProductID: 1, UoMID: 1, Quantity: types.NewQuantityFromFloat64(1.5)})
	require.NoError(t, err)
	price := types.MustMoney("2.35")
	_, err = ops.CreateMove(context.Background(), Move{Name: "B", ProductID: 1, UoMID: 1, Quantity: types.NewQuantityFromFloat64(1), PriceUnit: &price})
	require.NoError(t, err)

	calls := fake.Calls()
	assert.NotContains(t, calls[0].Args[0].(map[string]any), "price_unit")
	assert.Equal(t, 1.5, calls[0].Args[0].(map[string]any)["product_uom_qty"])
	assert.Equal(t, 2.35, calls[1].Args[0].(map[string]any)["price_unit"])
}

func TestConfirmMoves_AttemptsEveryMove(t *testing.T) {
	fake := erptest.New().
		Fails(ModelMove, "_action_confirm", apperror.NewRemote(ModelMove, "_action_confirm", "no")).
		Returns(ModelMove, "_action_confirm", true)

	errs := NewOps(fake, "").ConfirmMoves(context.Background(), []int64{1, 2, 3})
	assert.Len(t, errs, 1)
	assert.Len(t, fake.Calls(), 3)
}

func TestRead_MissingContainer(t *testing.T) {
	fake := erptest.New().Returns(ModelPicking, "read", []map[string]any{})

	_, err := NewOps(fake, "").Read(context.Background(), 5)
	assert.True(t, apperror.IsNotFound(err))
}

func TestReconcileDone_UpdatesOnlyMismatchedLines(t *testing.T) {
	fake := erptest.New().
		Returns(ModelPicking, "read", []map[string]any{{"id": 1, "move_line_ids": []int64{10, 11}, "move_ids_without_package": []int64{20}}}).
		Returns(ModelMoveLine, "read", []map[string]any{
			{"id": 10, "move_id": []any{20, "A"}, "quantity": 5},
			{"id": 11, "move_id": []any{20, "A"}, "quantity": false},
		}).
		Returns(ModelMove, "read", []map[string]any{{"id": 20, "product_uom_qty": 5}}).
		Returns(ModelMoveLine, "write", true)

	rec, err := NewOps(fake, "quantity").ReconcileDone(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, Reconciliation{Updated: 1}, rec)

	writes := fake.CallsTo(ModelMoveLine, "write")
	require.Len(t, writes, 1)
	assert.Equal(t, []int64{11}, writes[0].Args[0])
	assert.Equal(t, []string{"move_id", "quantity"}, fake.CallsTo(ModelMoveLine, "read")[0].Args[1])
}

func TestReconcileDone_UnreadableDoneIsRewritten(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.WithLogger(context.Background(), logger.NewFromCore(core))

	fake := erptest.New().
		Returns(ModelPicking, "read", []map[string]any{{"id": 1, "move_line_ids": []int64{10}, "move_ids_without_package": []int64{20}}}).
		Returns(ModelMoveLine, "read", []map[string]any{
			{"id": 10, "move_id": []any{20, "A"}, "quantity": map[string]any{"value": 5}},
		}).
		Returns(ModelMove, "read", []map[string]any{{"id": 20, "product_uom_qty": 5}}).
		Returns(ModelMoveLine, "write", true)

	rec, err := NewOps(fake, "quantity").ReconcileDone(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Reconciliation{Updated: 1}, rec)

	entries := logs.FilterMessage("done quantity unreadable, treating as zero").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.EqualValues(t, 10, entries[0].ContextMap()["line_id"])
	assert.Equal(t, "quantity", entries[0].ContextMap()["field"])
}
