package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/stock"
)

func q(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func preview(short bool) *stock.Preview {
	p := &stock.Preview{Lines: []stock.PreviewLine{
		{ProductID: 1, Quantity: q(2), Origin: &stock.Side{Before: q(5), After: q(3)}},
	}}
	if short {
		p.Lines = append(p.Lines, stock.PreviewLine{
			ProductID: 2, Quantity: q(4), Origin: &stock.Side{Before: q(1), After: q(-3)}, Shortage: true,
		})
		p.HasShortage = true
	}
	return p
}

func TestShortage_DefaultBlocksShortages(t *testing.T) {
	s, err := NewShortage("")
	require.NoError(t, err)
	assert.Equal(t, DefaultExpression, s.Expression())

	d, err := s.Evaluate("transfer", preview(false))
	require.NoError(t, err)
	assert.False(t, d.Blocked)

	d, err = s.Evaluate("transfer", preview(true))
	require.NoError(t, err)
	assert.True(t, d.Blocked)
	require.Len(t, d.Shortages, 1)
	assert.Equal(t, int64(2), d.Shortages[0].ProductID)
}

func TestShortage_Expressions(t *testing.T) {
	tests := []struct {
		expr    string
		kind    string
		blocked bool
	}{
		{"false", "transfer", false},
		{"hasShortage && kind == 'order'", "transfer", false},
		{"hasShortage && kind == 'order'", "order", true},
		{"shortages.exists(s, s.after < -5.0)", "transfer", false},
		{"shortages.exists(s, s.after < -2.0)", "transfer", true},
		{"shortageCount > 0 && lineCount > 1", "transfer", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := NewShortage(tt.expr)
			require.NoError(t, err)
			d, err := s.Evaluate(tt.kind, preview(true))
			require.NoError(t, err)
			assert.Equal(t, tt.blocked, d.Blocked)
		})
	}
}

func TestNewShortage_RejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"hasShortage &&", "lineCount + 1", "unknownVar"} {
		_, err := NewShortage(expr)
		assert.True(t, apperror.HasCode(err, apperror.CodeConfiguration), expr)
	}
}

func TestShortage_Check(t *testing.T) {
	s, err := NewShortage("")
	require.NoError(t, err)

	assert.NoError(t, s.Check("transfer", preview(false)))

	err = s.Check("transfer", preview(true))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	always, err := NewShortage("true")
	require.NoError(t, err)
	err = always.Check("order", preview(false))
	assert.True(t, apperror.HasCode(err, "SUBMISSION_BLOCKED"))
}
