package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"ODOO_TIMEOUT", "ODOO_RETRIES", "DONE_QTY_FIELD", "VALIDATE_METHODS", "TRANSFER_LOCK", "POS_CONFIG_NAME"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, 12*time.Second, cfg.Odoo.Timeout)
	assert.Equal(t, 1, cfg.Odoo.Retries)
	assert.Equal(t, 350*time.Millisecond, cfg.Odoo.RetryBackoff)
	assert.Equal(t, "qty_done", cfg.DoneField)
	assert.Equal(t, []string{"action_done", "button_validate"}, cfg.ValidateMethods)
	assert.Equal(t, "bodega", cfg.POSConfigName)
	assert.False(t, cfg.TransferLock)
	assert.Equal(t, "hasShortage", cfg.ShortagePolicy)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ODOO_TIMEOUT", "5s")
	t.Setenv("ODOO_RETRIES", "0")
	t.Setenv("DONE_QTY_FIELD", "quantity")
	t.Setenv("VALIDATE_METHODS", " button_validate , ,action_done")
	t.Setenv("ENTRY_WAREHOUSE_ID", "3")
	t.Setenv("TRANSFER_LOCK", "true")
	t.Setenv("TRANSFER_LOCK_TTL", "bogus")

	cfg := Load()
	assert.Equal(t, 5*time.Second, cfg.Odoo.Timeout)
	assert.Equal(t, 0, cfg.Odoo.Retries)
	assert.Equal(t, "quantity", cfg.DoneField)
	assert.Equal(t, []string{"button_validate", "action_done"}, cfg.ValidateMethods)
	assert.Equal(t, int64(3), cfg.EntryWarehouseID)
	assert.True(t, cfg.TransferLock)
	assert.Equal(t, time.Minute, cfg.TransferLockTTL)
}

func TestValidate(t *testing.T) {
	cfg := &Config{DoneField: "qty_done", ValidateMethods: []string{"action_done"}}
	err := cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{"ODOO_URL", "ODOO_DB", "ODOO_USER", "ODOO_PASSWORD"} {
		assert.Contains(t, err.Error(), key)
	}

	cfg.Odoo = OdooConfig{URL: "http://erp", Database: "db", User: "u", Password: "p"}
	assert.NoError(t, cfg.Validate())

	cfg.TransferLock = true
	assert.ErrorContains(t, cfg.Validate(), "REDIS_ADDR")

	cfg.TransferLock = false
	cfg.DoneField = "done"
	assert.ErrorContains(t, cfg.Validate(), "DONE_QTY_FIELD")
}
