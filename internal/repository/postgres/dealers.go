package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

type dealerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDealerRepository creates a new dealer repository
func NewDealerRepository(db *sql.DB, logger *zap.Logger) *dealerRepository {
	return &dealerRepository{
		db:     db,
		logger: logger,
	}
}

const dealerColumns = `id, name, api_key_hash, is_active, eligible_for_disable,
	disabled_reason, disabled_at, created_at, updated_at`

func (r *dealerRepository) Create(ctx context.Context, dealer *domain.Dealer) error {
	now := time.Now()
	if dealer.ID == uuid.Nil {
		dealer.ID = uuid.New()
	}
	if dealer.CreatedAt.IsZero() {
		dealer.CreatedAt = now
	}
	dealer.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dealers (id, name, api_key_hash, is_active, eligible_for_disable,
			disabled_reason, disabled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		dealer.ID, dealer.Name, dealer.APIKeyHash, dealer.IsActive, dealer.EligibleForDisable,
		dealer.DisabledReason, dealer.DisabledAt, dealer.CreatedAt, dealer.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create dealer", zap.Error(err))
		return err
	}
	return nil
}

func (r *dealerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Dealer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+dealerColumns+`
		FROM dealers
		WHERE id = $1
	`, id)

	dealer, err := scanDealer(row)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "dealer", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get dealer", zap.Error(err))
		return nil, err
	}
	return dealer, nil
}

// GetByAPIKey verifies the presented key against each active dealer's bcrypt
// hash. Hashes are salted, so a direct hash lookup is not possible.
func (r *dealerRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Dealer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+dealerColumns+`
		FROM dealers
		WHERE is_active = true
	`)
	if err != nil {
		r.logger.Error("Failed to query dealers", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		dealer, err := scanDealer(rows)
		if err != nil {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(dealer.APIKeyHash), []byte(apiKey)); err == nil {
			return dealer, nil
		}
	}

	return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *dealerRepository) ListStock(ctx context.Context, sku string) ([]*domain.DealerStock, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.dealer_id, s.sku, s.available_qty, s.priority, s.margin, s.in_stock
		FROM dealer_stock s
		JOIN dealers d ON d.id = s.dealer_id
		WHERE s.sku = $1 AND d.is_active = true
		ORDER BY s.priority, s.margin DESC
	`, sku)
	if err != nil {
		r.logger.Error("Failed to list dealer stock", zap.String("sku", sku), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var stock []*domain.DealerStock
	for rows.Next() {
		var s domain.DealerStock
		err := rows.Scan(&s.DealerID, &s.SKU, &s.AvailableQty, &s.Priority, &s.Margin, &s.InStock)
		if err != nil {
			return nil, err
		}
		stock = append(stock, &s)
	}
	return stock, rows.Err()
}

func (r *dealerRepository) GetSLAProfile(ctx context.Context, dealerID uuid.UUID) (*domain.SLAProfile, error) {
	var p domain.SLAProfile
	var maxDispatchMin, shippingMin, deliveryMin int64

	err := r.db.QueryRowContext(ctx, `
		SELECT dealer_id, dispatch_window_start, dispatch_window_end,
			max_dispatch_minutes, shipping_minutes, delivery_minutes
		FROM sla_profiles
		WHERE dealer_id = $1
	`, dealerID).Scan(
		&p.DealerID, &p.DispatchWindowStart, &p.DispatchWindowEnd,
		&maxDispatchMin, &shippingMin, &deliveryMin,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "SLA profile", ID: dealerID.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get SLA profile", zap.Error(err))
		return nil, err
	}

	p.MaxDispatchTime = time.Duration(maxDispatchMin) * time.Minute
	p.ShippingTime = time.Duration(shippingMin) * time.Minute
	p.DeliveryTime = time.Duration(deliveryMin) * time.Minute
	return &p, nil
}

func (r *dealerRepository) SaveSLAProfile(ctx context.Context, profile *domain.SLAProfile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sla_profiles (dealer_id, dispatch_window_start, dispatch_window_end,
			max_dispatch_minutes, shipping_minutes, delivery_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dealer_id) DO UPDATE
		SET dispatch_window_start = EXCLUDED.dispatch_window_start,
			dispatch_window_end = EXCLUDED.dispatch_window_end,
			max_dispatch_minutes = EXCLUDED.max_dispatch_minutes,
			shipping_minutes = EXCLUDED.shipping_minutes,
			delivery_minutes = EXCLUDED.delivery_minutes
	`,
		profile.DealerID, profile.DispatchWindowStart, profile.DispatchWindowEnd,
		int64(profile.MaxDispatchTime.Minutes()), int64(profile.ShippingTime.Minutes()),
		int64(profile.DeliveryTime.Minutes()),
	)
	if err != nil {
		r.logger.Error("Failed to save SLA profile", zap.Error(err))
	}
	return err
}

func (r *dealerRepository) SetEligibleForDisable(ctx context.Context, dealerID uuid.UUID, eligible bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dealers
		SET eligible_for_disable = $2, updated_at = $3
		WHERE id = $1
	`, dealerID, eligible, time.Now())
	if err != nil {
		r.logger.Error("Failed to flag dealer", zap.Error(err))
	}
	return err
}

func (r *dealerRepository) Disable(ctx context.Context, dealerID uuid.UUID, reason string) error {
	now := time.Now()
	result, err := r.db.ExecContext(ctx, `
		UPDATE dealers
		SET is_active = false, disabled_reason = $2, disabled_at = $3, updated_at = $3
		WHERE id = $1
	`, dealerID, reason, now)
	if err != nil {
		r.logger.Error("Failed to disable dealer", zap.Error(err))
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &errors.ErrNotFound{Resource: "dealer", ID: dealerID.String()}
	}
	return nil
}

func scanDealer(row rowScanner) (*domain.Dealer, error) {
	var dealer domain.Dealer
	var disabledReason sql.NullString
	var disabledAt sql.NullTime

	err := row.Scan(
		&dealer.ID, &dealer.Name, &dealer.APIKeyHash, &dealer.IsActive,
		&dealer.EligibleForDisable, &disabledReason, &disabledAt,
		&dealer.CreatedAt, &dealer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if disabledReason.Valid {
		dealer.DisabledReason = &disabledReason.String
	}
	if disabledAt.Valid {
		dealer.DisabledAt = &disabledAt.Time
	}
	return &dealer, nil
}
