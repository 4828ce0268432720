package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

type orderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sql.DB, logger *zap.Logger) *orderRepository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, entries []*domain.AuditLogEntry) error {
	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	order.Version = 1

	deliveryMeta, err := json.Marshal(order.DeliveryMeta)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_ref, ordered_at, status, status_reason, partial_return,
			overridden, total_amount, payment_status, delivery_meta, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		order.ID, order.CustomerRef, order.OrderedAt, order.Status, order.StatusReason,
		order.PartialReturn, order.Overridden, order.TotalAmount, order.PaymentStatus,
		deliveryMeta, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert order", zap.Error(err))
		return err
	}

	for _, item := range order.Items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = order.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		if err := insertLineItem(ctx, tx, item); err != nil {
			r.logger.Error("Failed to insert line item", zap.String("sku", item.SKU), zap.Error(err))
			return err
		}
		for _, a := range item.Assignments {
			if err := insertAssignment(ctx, tx, a); err != nil {
				r.logger.Error("Failed to insert assignment", zap.String("sku", a.SKU), zap.Error(err))
				return err
			}
		}
	}

	for _, entry := range entries {
		if err := insertAuditEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, `
		SELECT id, customer_ref, ordered_at, status, status_reason, partial_return,
			overridden, total_amount, payment_status, delivery_meta, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get order", zap.Error(err))
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, status *domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	query := `
		SELECT id, customer_ref, ordered_at, status, status_reason, partial_return,
			overridden, total_amount, payment_status, delivery_meta, version, created_at, updated_at
		FROM orders
	`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, *status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// UpdateAggregate writes the full aggregate back under an optimistic version
// check. Line items, assignments and audit entries commit in the same
// transaction as the order status so they can never diverge.
func (r *orderRepository) UpdateAggregate(ctx context.Context, order *domain.Order, expectedVersion int64, entries []*domain.AuditLogEntry) error {
	order.UpdatedAt = time.Now()
	order.Version = expectedVersion + 1

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, status_reason = $3, partial_return = $4, overridden = $5,
			version = $6, updated_at = $7
		WHERE id = $1 AND version = $8
	`,
		order.ID, order.Status, order.StatusReason, order.PartialReturn, order.Overridden,
		order.Version, order.UpdatedAt, expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update order", zap.Error(err))
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &errors.ErrVersionConflict{Resource: "order", ID: order.ID.String()}
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			UPDATE sku_line_items
			SET status = $2, unfulfillable = $3, packed_at = $4, shipped_at = $5,
				delivered_at = $6, tracking_carrier = $7, tracking_number = $8, tracking_url = $9
			WHERE id = $1
		`,
			item.ID, item.Status, item.Unfulfillable, item.PackedAt, item.ShippedAt,
			item.DeliveredAt, item.TrackingCarrier, item.TrackingNumber, item.TrackingURL,
		)
		if err != nil {
			r.logger.Error("Failed to update line item", zap.String("sku", item.SKU), zap.Error(err))
			return err
		}

		for _, a := range item.Assignments {
			_, err = tx.ExecContext(ctx, `
				UPDATE dealer_assignments
				SET status = $2, closed_at = $3, replaced_by = $4, completed_at = $5
				WHERE id = $1
			`,
				a.ID, a.Status, a.ClosedAt, a.ReplacedBy, a.CompletedAt,
			)
			if err != nil {
				r.logger.Error("Failed to update assignment", zap.String("sku", a.SKU), zap.Error(err))
				return err
			}
		}
	}

	for _, entry := range entries {
		if err := insertAuditEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *orderRepository) scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var deliveryMeta []byte

	err := row.Scan(
		&order.ID,
		&order.CustomerRef,
		&order.OrderedAt,
		&order.Status,
		&order.StatusReason,
		&order.PartialReturn,
		&order.Overridden,
		&order.TotalAmount,
		&order.PaymentStatus,
		&deliveryMeta,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(deliveryMeta) > 0 {
		if err := json.Unmarshal(deliveryMeta, &order.DeliveryMeta); err != nil {
			return nil, err
		}
	}
	return &order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, sku, title, price, quantity, status, unfulfillable,
			packed_at, shipped_at, delivered_at, tracking_carrier, tracking_number,
			tracking_url, created_at
		FROM sku_line_items
		WHERE order_id = $1
		ORDER BY created_at, sku
	`, order.ID)
	if err != nil {
		r.logger.Error("Failed to load line items", zap.Error(err))
		return err
	}
	defer rows.Close()

	itemsByID := make(map[uuid.UUID]*domain.SkuLineItem)
	for rows.Next() {
		var item domain.SkuLineItem
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.SKU, &item.Title, &item.Price, &item.Quantity,
			&item.Status, &item.Unfulfillable, &item.PackedAt, &item.ShippedAt,
			&item.DeliveredAt, &item.TrackingCarrier, &item.TrackingNumber,
			&item.TrackingURL, &item.CreatedAt,
		)
		if err != nil {
			return err
		}
		order.Items = append(order.Items, &item)
		itemsByID[item.ID] = &item
	}
	if err := rows.Err(); err != nil {
		return err
	}

	assignmentRows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, sku_line_item_id, sku, dealer_id, quantity, margin, priority,
			in_stock, status, assigned_at, closed_at, replaced_by, sla_unknown,
			expected_dispatch_at, expected_fulfillment_at, sla_evaluated, completed_at
		FROM dealer_assignments
		WHERE order_id = $1
		ORDER BY assigned_at
	`, order.ID)
	if err != nil {
		r.logger.Error("Failed to load assignments", zap.Error(err))
		return err
	}
	defer assignmentRows.Close()

	for assignmentRows.Next() {
		a, err := scanAssignment(assignmentRows)
		if err != nil {
			return err
		}
		if item, ok := itemsByID[a.SkuLineItemID]; ok {
			item.Assignments = append(item.Assignments, a)
		}
	}
	return assignmentRows.Err()
}

func insertLineItem(ctx context.Context, tx *sql.Tx, item *domain.SkuLineItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sku_line_items (id, order_id, sku, title, price, quantity, status,
			unfulfillable, packed_at, shipped_at, delivered_at, tracking_carrier,
			tracking_number, tracking_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		item.ID, item.OrderID, item.SKU, item.Title, item.Price, item.Quantity, item.Status,
		item.Unfulfillable, item.PackedAt, item.ShippedAt, item.DeliveredAt,
		item.TrackingCarrier, item.TrackingNumber, item.TrackingURL, item.CreatedAt,
	)
	return err
}

func insertAssignment(ctx context.Context, tx *sql.Tx, a *domain.DealerAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dealer_assignments (id, order_id, sku_line_item_id, sku, dealer_id,
			quantity, margin, priority, in_stock, status, assigned_at, closed_at, replaced_by,
			sla_unknown, expected_dispatch_at, expected_fulfillment_at, sla_evaluated, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		a.ID, a.OrderID, a.SkuLineItemID, a.SKU, a.DealerID,
		a.Quantity, a.Margin, a.Priority, a.InStock, a.Status, a.AssignedAt, a.ClosedAt,
		a.ReplacedBy, a.SLAUnknown, a.ExpectedDispatchAt, a.ExpectedFulfillmentAt,
		a.SLAEvaluated, a.CompletedAt,
	)
	return err
}
