package entry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/workflow"
	"stockflow/internal/erp"
	"stockflow/internal/erp/erptest"
)

func q(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func receiptERP() *erptest.Fake {
	return erptest.New().
		Returns("stock.picking.type", "search_read", []map[string]any{{"id": 3}}).
		Returns("stock.warehouse", "read", []map[string]any{
			{"id": 1, "name": "Bodega", "code": "BOD", "lot_stock_id": []any{8, "BOD/Stock"}, "view_location_id": []any{7, "BOD"}},
		}).
		Returns("stock.location", "search_read", []map[string]any{{"id": 4}}).
		Returns("stock.picking", "create", 200).
		Returns("product.product", "read", []map[string]any{
			{"id": 11, "name": "Cement", "default_code": "CEM", "qty_available": 100, "standard_price": 10, "uom_id": []any{1, "Units"}},
		}).
		Returns("product.product", "write", true).
		Returns("stock.move", "create", 600).
		Returns("stock.picking", "action_confirm", true).
		Returns("stock.picking", "action_assign", true).
		Returns("stock.move", "read", []map[string]any{{
			"id": 600, "product_id": []any{11, "Cement"}, "product_uom": []any{1, "Units"}, "product_uom_qty": 50,
			"location_id": []any{4, "Vendors"}, "location_dest_id": []any{8, "BOD/Stock"}, "picking_id": []any{200, "BOD/IN/1"},
			"move_line_ids": []int64{},
		}}).
		Returns("stock.move.line", "create", 700).
		Returns("stock.picking", "button_validate", true)
}

func cementRequest() Request {
	return Request{
		WarehouseID: 1,
		Lines:       []Line{{ProductID: 11, Quantity: q(50), UnitCost: types.MustMoney("13")}},
	}
}

func TestCreate_WeightedAverageScenario(t *testing.T) {
	fake := receiptERP()
	res, err := NewService(fake, Config{}).Create(context.Background(), cementRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(200), res.ContainerID)
	assert.Equal(t, "Bodega", res.Warehouse)
	require.Len(t, res.Lines, 1)
	line := res.Lines[0]
	assert.Equal(t, q(150), line.NewQty)
	assert.True(t, line.NewCost.Equal(types.MustMoney("11")), line.NewCost.String())

	assert.Equal(t, []string{
		"stock.picking.type.search_read",
		"stock.warehouse.read",
		"stock.location.search_read",
		"stock.picking.create",
		"product.product.read",
		"product.product.write",
		"stock.move.create",
		"stock.picking.action_confirm",
		"stock.picking.action_assign",
		"stock.move.read",
		"stock.move.line.create",
		"stock.picking.button_validate",
	}, fake.Sequence())

	container := fake.CallsTo("stock.picking", "create")[0].Args[0].(map[string]any)
	assert.Equal(t, int64(4), container["location_id"])
	assert.Equal(t, int64(8), container["location_dest_id"])
	assert.Equal(t, int64(3), container["picking_type_id"])

	write := fake.CallsTo("product.product", "write")[0]
	assert.Equal(t, map[string]any{"standard_price": 11.0}, write.Args[1])

	move := fake.CallsTo("stock.move", "create")[0].Args[0].(map[string]any)
	assert.Equal(t, 13.0, move["price_unit"])
	assert.Equal(t, 50.0, move["product_uom_qty"])

	moveLine := fake.CallsTo("stock.move.line", "create")[0].Args[0].(map[string]any)
	assert.Equal(t, 50.0, moveLine["qty_done"])
	assert.Equal(t, int64(4), moveLine["location_id"])
}

func TestCreate_OverwritesExistingMoveLines(t *testing.T) {
	fake := erptest.New().
		Returns("stock.picking.type", "search_read", []map[string]any{{"id": 3}}).
		Returns("stock.warehouse", "read", []map[string]any{{"id": 1, "name": "Bodega", "lot_stock_id": []any{8, "BOD/Stock"}}}).
		Returns("stock.location", "search_read", []map[string]any{{"id": 4}}).
		Returns("stock.picking", "create", 200).
		Returns("product.product", "read", []map[string]any{{"id": 11, "name": "Cement", "qty_available": 0, "standard_price": 0, "uom_id": []any{1, "Units"}}}).
		Returns("product.product", "write", true).
		Returns("stock.move", "create", 600).
		Returns("stock.picking", "action_confirm", true).
		Returns("stock.picking", "action_assign", true).
		Returns("stock.move", "read", []map[string]any{{"id": 600, "product_uom_qty": 50, "move_line_ids": []int64{701, 702}}}).
		Returns("stock.move.line", "write", true).
		Returns("stock.picking", "button_validate", true)

	res, err := NewService(fake, Config{DoneField: "quantity"}).Create(context.Background(), cementRequest())
	require.NoError(t, err)
	assert.True(t, res.Lines[0].NewCost.Equal(types.MustMoney("13")), "empty stock takes the incoming cost")

	write := fake.CallsTo("stock.move.line", "write")[0]
	assert.Equal(t, []int64{701, 702}, write.Args[0])
	assert.Equal(t, map[string]any{"quantity": 50.0}, write.Args[1])
	assert.Empty(t, fake.CallsTo("stock.move.line", "create"))
}

func TestCreate_ConfirmFallbackConfirmsMovesThenRetries(t *testing.T) {
	// first confirm fails, the retry succeeds
	fake := erptest.New().
		Returns("stock.picking.type", "search_read", []map[string]any{{"id": 3}}).
		Returns("stock.warehouse", "read", []map[string]any{{"id": 1, "name": "Bodega", "lot_stock_id": []any{8, "BOD/Stock"}}}).
		Returns("stock.location", "search_read", []map[string]any{{"id": 4}}).
		Returns("stock.picking", "create", 200).
		Returns("product.product", "read", []map[string]any{{"id": 11, "name": "Cement", "qty_available": 100, "standard_price": 10, "uom_id": []any{1, "Units"}}}).
		Returns("product.product", "write", true).
		Returns("stock.move", "create", 600).
		Fails("stock.picking", "action_confirm", apperror.NewRemote("stock.picking", "action_confirm", "moves not ready")).
		Returns("stock.picking", "action_confirm", true).
		Fails("stock.move", "_action_confirm", apperror.NewRemote("stock.move", "_action_confirm", "private method")).
		Returns("stock.picking", "action_assign", true).
		Returns("stock.move", "read", []map[string]any{{"id": 600, "product_uom_qty": 50, "move_line_ids": []int64{701}}}).
		Returns("stock.move.line", "write", true).
		Returns("stock.picking", "button_validate", true)

	res, err := NewService(fake, Config{}).Create(context.Background(), cementRequest())
	require.NoError(t, err)

	assert.Len(t, fake.CallsTo("stock.picking", "action_confirm"), 2)
	assert.Len(t, fake.CallsTo("stock.move", "_action_confirm"), 1)

	statuses := map[string]workflow.Status{}
	for _, p := range res.Phases {
		statuses[p.Phase] = p.Status
	}
	assert.Equal(t, workflow.StatusSkipped, statuses[PhaseConfirm])
	assert.Equal(t, workflow.StatusSkipped, statuses[PhaseConfirmMoves])
	assert.Equal(t, workflow.StatusOK, statuses[PhaseConfirmRetry])
}

func TestCreate_ConfirmNotRetriedWhenItSucceeds(t *testing.T) {
	fake := receiptERP()
	res, err := NewService(fake, Config{}).Create(context.Background(), cementRequest())
	require.NoError(t, err)

	for _, p := range res.Phases {
		assert.NotEqual(t, PhaseConfirmMoves, p.Phase)
		assert.NotEqual(t, PhaseConfirmRetry, p.Phase)
	}
	assert.Empty(t, fake.CallsTo("stock.move", "_action_confirm"))
}

func TestCreate_StrictValidateFailureIsFatalAndCostStays(t *testing.T) {
	fake := erptest.New().
		Returns("stock.picking.type", "search_read", []map[string]any{{"id": 3}}).
		Returns("stock.warehouse", "read", []map[string]any{{"id": 1, "name": "Bodega", "lot_stock_id": []any{8, "BOD/Stock"}}}).
		Returns("stock.location", "search_read", []map[string]any{{"id": 4}}).
		Returns("stock.picking", "create", 200).
		Returns("product.product", "read", []map[string]any{{"id": 11, "name": "Cement", "qty_available": 100, "standard_price": 10, "uom_id": []any{1, "Units"}}}).
		Returns("product.product", "write", true).
		Returns("stock.move", "create", 600).
		Returns("stock.picking", "action_confirm", true).
		Returns("stock.picking", "action_assign", true).
		Returns("stock.move", "read", []map[string]any{{"id": 600, "product_uom_qty": 50, "move_line_ids": []int64{701}}}).
		Returns("stock.move.line", "write", true).
		Fails("stock.picking", "button_validate", apperror.NewRemote("stock.picking", "button_validate", "lot required"))

	_, err := NewService(fake, Config{}).Create(context.Background(), cementRequest())
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeRemote, appErr.Code)
	assert.Equal(t, PhaseValidate, appErr.Details["phase"])
	assert.Equal(t, int64(200), appErr.Details["containerId"])
	assert.Len(t, fake.CallsTo("product.product", "write"), 1, "cost write is not rolled back")
	assert.Empty(t, fake.CallsTo("stock.picking", "action_done"))
}

func TestCreate_ReadsCostPerLine(t *testing.T) {
	reads := 0
	fake := erptest.New().
		Returns("stock.picking.type", "search_read", []map[string]any{{"id": 3}}).
		Returns("stock.warehouse", "read", []map[string]any{{"id": 1, "name": "Bodega", "lot_stock_id": []any{8, "BOD/Stock"}}}).
		Returns("stock.location", "search_read", []map[string]any{{"id": 4}}).
		Returns("stock.picking", "create", 200).
		On("product.product", "read", func(erp.Call) (any, error) {
			reads++
			if reads == 1 {
				return []map[string]any{{"id": 11, "name": "Cement", "qty_available": 100, "standard_price": 10, "uom_id": []any{1, "Units"}}}, nil
			}
			// the second read sees the first line's cost write
			return []map[string]any{{"id": 11, "name": "Cement", "qty_available": 100, "standard_price": 11, "uom_id": []any{1, "Units"}}}, nil
		}).
		Returns("product.product", "write", true).
		Returns("stock.move", "create", 600).
		Returns("stock.picking", "action_confirm", true).
		Returns("stock.picking", "action_assign", true).
		Returns("stock.move", "read", []map[string]any{}).
		Returns("stock.picking", "button_validate", true)

	req := cementRequest()
	req.Lines = append(req.Lines, Line{ProductID: 11, Quantity: q(100), UnitCost: types.MustMoney("11")})
	res, err := NewService(fake, Config{}).Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, reads)
	require.Len(t, res.Lines, 2)
	assert.True(t, res.Lines[1].CurrentCost.Equal(types.MustMoney("11")))
	assert.True(t, res.Lines[1].NewCost.Equal(types.MustMoney("11")))
}

func TestCreate_MissingSupplierLocationIsFatal(t *testing.T) {
	fake := erptest.New().
		Returns("stock.picking.type", "search_read", []map[string]any{{"id": 3}}).
		Returns("stock.warehouse", "read", []map[string]any{{"id": 1, "name": "Bodega", "lot_stock_id": []any{8, "BOD/Stock"}}}).
		Returns("stock.location", "search_read", []map[string]any{})

	_, err := NewService(fake, Config{}).Create(context.Background(), cementRequest())
	assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration))
	assert.Empty(t, fake.CallsTo("stock.picking", "create"))
}

func TestCreate_UsesDefaultWarehouse(t *testing.T) {
	fake := receiptERP()
	req := cementRequest()
	req.WarehouseID = 0

	_, err := NewService(fake, Config{DefaultWarehouseID: 1}).Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, fake.CallsTo("stock.warehouse", "read")[0].Args[0])
}

func TestCreate_Validation(t *testing.T) {
	fake := erptest.New()
	svc := NewService(fake, Config{})

	for _, req := range []Request{
		{Lines: []Line{{ProductID: 1, Quantity: q(1)}}},
		{WarehouseID: 1},
		{WarehouseID: 1, Lines: []Line{{ProductID: 1, Quantity: 0}}},
		{WarehouseID: 1, Lines: []Line{{ProductID: 1, Quantity: q(1), UnitCost: types.MustMoney("-1")}}},
	} {
		_, err := svc.Create(context.Background(), req)
		assert.True(t, apperror.IsValidation(err))
	}
	assert.Empty(t, fake.Calls())
}

func TestPreview_ReadsWithoutWriting(t *testing.T) {
	fake := erptest.New().Returns("product.product", "read", []map[string]any{
		{"id": 11, "name": "Cement", "default_code": "CEM", "qty_available": -5, "standard_price": 10, "uom_id": []any{1, "Units"}},
	})

	got, err := NewService(fake, Config{}).Preview(context.Background(), cementRequest())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CEM", got[0].Code)
	assert.Equal(t, types.Quantity(0), got[0].CurrentQty, "negative stock is clamped")
	assert.True(t, got[0].NewCost.Equal(types.MustMoney("13")))
	assert.Equal(t, []string{"product.product.read"}, fake.Sequence())
}
