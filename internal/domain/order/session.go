package order

import (
	"context"
	"fmt"
	"strings"

	"stockflow/internal/core/apperror"
	"stockflow/internal/erp"
	"stockflow/pkg/logger"
)

// Session states that accept orders.
const (
	SessionOpened         = "opened"
	SessionOpeningControl = "opening_control"
)

// DefaultConfigName is the point-of-sale configuration orders are booked on.
const DefaultConfigName = "bodega"

// SessionContext is the open point-of-sale session an order is created in.
type SessionContext struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ConfigID    int64  `json:"configId"`
	CurrencyID  int64  `json:"currencyId,omitempty"`
	CompanyID   int64  `json:"companyId,omitempty"`
	PricelistID int64  `json:"pricelistId,omitempty"`
}

// PaymentMethod is a point-of-sale payment method.
type PaymentMethod struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SessionResolver finds or opens the session orders are booked on.
type SessionResolver struct {
	inv erp.Invoker
}

// NewSessionResolver creates a SessionResolver.
func NewSessionResolver(inv erp.Invoker) *SessionResolver {
	return &SessionResolver{inv: inv}
}

type sessionRow struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	State    string       `json:"state"`
	Config   erp.Many2One `json:"config_id"`
	Currency erp.Many2One `json:"currency_id"`
	Company  erp.Many2One `json:"company_id"`
}

type configRow struct {
	ID        int64        `json:"id"`
	Pricelist erp.Many2One `json:"pricelist_id"`
}

// Ensure returns an open session for the configuration whose name contains
// configName, creating and opening one when none is open.
func (r *SessionResolver) Ensure(ctx context.Context, configName string) (SessionContext, error) {
	if strings.TrimSpace(configName) == "" {
		configName = DefaultConfigName
	}

	configs, err := erp.Search(ctx, r.inv, "pos.config",
		erp.Domain{erp.Cond("name", "ilike", configName)}, erp.Options{Limit: 1})
	if err != nil {
		return SessionContext{}, fmt.Errorf("find pos config: %w", err)
	}
	if len(configs) == 0 {
		return SessionContext{}, apperror.NewConfiguration(fmt.Sprintf("no point-of-sale configuration matches %q", configName))
	}
	configID := configs[0]

	sessions, err := erp.Search(ctx, r.inv, "pos.session", erp.Domain{
		erp.Cond("config_id", "=", configID),
		erp.Cond("state", "in", []string{SessionOpened, SessionOpeningControl}),
	}, erp.Options{Limit: 1})
	if err != nil {
		return SessionContext{}, fmt.Errorf("find pos session: %w", err)
	}

	var sessionID int64
	if len(sessions) == 0 {
		sessionID, err = erp.Create(ctx, r.inv, "pos.session", map[string]any{"config_id": configID})
		if err != nil {
			return SessionContext{}, fmt.Errorf("create pos session: %w", err)
		}
		r.open(ctx, sessionID)
	} else {
		sessionID = sessions[0]
	}

	rows, err := erp.Read[sessionRow](ctx, r.inv, "pos.session", []int64{sessionID},
		[]string{"name", "state", "config_id", "currency_id", "company_id"}, erp.Options{})
	if err != nil {
		return SessionContext{}, fmt.Errorf("read pos session: %w", err)
	}
	if len(rows) == 0 {
		return SessionContext{}, apperror.NewNotFound("pos.session", sessionID)
	}
	s := rows[0]
	if s.State == SessionOpeningControl {
		r.open(ctx, sessionID)
	}

	out := SessionContext{
		ID:         s.ID,
		Name:       s.Name,
		ConfigID:   configID,
		CurrencyID: s.Currency.ID,
		CompanyID:  s.Company.ID,
	}
	cfgs, err := erp.Read[configRow](ctx, r.inv, "pos.config", []int64{configID}, []string{"pricelist_id"}, erp.Options{})
	if err != nil {
		logger.Warn(ctx, "pos config unreadable, ordering without pricelist", "config_id", configID, "error", err)
	} else if len(cfgs) > 0 {
		out.PricelistID = cfgs[0].Pricelist.ID
	}
	return out, nil
}

// open is best-effort: a session the ERP refuses to open still accepts the
// create_from_ui call on some deployments.
func (r *SessionResolver) open(ctx context.Context, sessionID int64) {
	if err := erp.Exec(ctx, r.inv, "pos.session", "action_pos_session_open", []int64{sessionID}); err != nil {
		logger.Warn(ctx, "pos session open failed", "session_id", sessionID, "error", err)
	}
}

type pickingTypeRef struct {
	ID          int64        `json:"id"`
	PickingType erp.Many2One `json:"picking_type_id"`
}

type pickingTypeSource struct {
	ID     int64        `json:"id"`
	Source erp.Many2One `json:"default_location_src_id"`
}

// StockLocation returns the location a configuration sells from: the
// default source of its operation type.
func (r *SessionResolver) StockLocation(ctx context.Context, configID int64) (int64, error) {
	cfgs, err := erp.Read[pickingTypeRef](ctx, r.inv, "pos.config", []int64{configID}, []string{"picking_type_id"}, erp.Options{})
	if err != nil {
		return 0, fmt.Errorf("read pos config: %w", err)
	}
	if len(cfgs) == 0 || !cfgs[0].PickingType.Valid() {
		return 0, apperror.NewConfiguration("point-of-sale configuration has no operation type").
			WithDetail("configId", configID)
	}
	pts, err := erp.Read[pickingTypeSource](ctx, r.inv, "stock.picking.type", []int64{cfgs[0].PickingType.ID},
		[]string{"default_location_src_id"}, erp.Options{})
	if err != nil {
		return 0, fmt.Errorf("read operation type: %w", err)
	}
	if len(pts) == 0 || !pts[0].Source.Valid() {
		return 0, apperror.NewConfiguration("point-of-sale operation type has no source location").
			WithDetail("pickingTypeId", cfgs[0].PickingType.ID)
	}
	return pts[0].Source.ID, nil
}

// PaymentMethods lists payment methods, keeping only those whose lower-cased
// name is in allow. An empty allow list keeps every method.
func (r *SessionResolver) PaymentMethods(ctx context.Context, allow []string) ([]PaymentMethod, error) {
	all, err := erp.SearchRead[PaymentMethod](ctx, r.inv, "pos.payment.method", nil, []string{"id", "name"}, erp.Options{Limit: 50})
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	if len(allow) == 0 {
		return all, nil
	}
	allowed := make(map[string]struct{}, len(allow))
	for _, a := range allow {
		allowed[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	out := all[:0]
	for _, m := range all {
		if _, ok := allowed[strings.ToLower(m.Name)]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
