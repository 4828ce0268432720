package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/assign"
	"github.com/jafarshop/fulfillment/internal/catalog"
	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/events"
	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/internal/sla"
	"github.com/jafarshop/fulfillment/pkg/errors"
)

// OrderService owns the order aggregate: acceptance, per-SKU transitions,
// tracking updates and admin overrides. Every mutation reads the aggregate,
// applies one transition, recomputes the order-level status and writes back
// under an optimistic version check; conflicts are retried internally, not
// surfaced to fast-fingered dealers.
type OrderService struct {
	repos      *repository.Repositories
	resolver   *assign.Resolver
	violations *ViolationService
	publisher  events.Publisher
	catalog    *catalog.Client
	loc        *time.Location
	retries    int
	logger     *zap.Logger
	now        func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	repos *repository.Repositories,
	resolver *assign.Resolver,
	violations *ViolationService,
	publisher events.Publisher,
	catalogClient *catalog.Client,
	loc *time.Location,
	conflictRetries int,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		repos:      repos,
		resolver:   resolver,
		violations: violations,
		publisher:  publisher,
		catalog:    catalogClient,
		loc:        loc,
		retries:    conflictRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// AcceptOrder creates the order aggregate atomically with its full line-item
// set: each SKU is resolved to dealer assignments, each assignment gets its
// SLA deadline computed and cached. A SKU no dealer combination can cover is
// left Pending and flagged unfulfillable rather than silently short-assigned.
func (s *OrderService) AcceptOrder(ctx context.Context, req OrderAcceptRequest, actor Actor) (*domain.Order, error) {
	now := s.now()
	orderedAt := now
	if req.OrderedAt != nil {
		orderedAt = *req.OrderedAt
	}

	order := &domain.Order{
		ID:            uuid.New(),
		CustomerRef:   req.CustomerRef,
		OrderedAt:     orderedAt,
		TotalAmount:   req.TotalAmount,
		PaymentStatus: req.PaymentStatus,
		DeliveryMeta:  req.DeliveryMeta,
	}

	seen := make(map[string]bool, len(req.Items))
	for _, input := range req.Items {
		if seen[input.SKU] {
			return nil, &errors.ErrValidation{Field: "items", Message: "duplicate SKU " + input.SKU}
		}
		seen[input.SKU] = true

		item := &domain.SkuLineItem{
			ID:       uuid.New(),
			OrderID:  order.ID,
			SKU:      input.SKU,
			Title:    input.Title,
			Price:    input.Price,
			Quantity: input.Quantity,
			Status:   domain.SkuStatusPending,
		}
		s.enrichTitle(ctx, item)

		candidates, err := s.repos.Dealer.ListStock(ctx, item.SKU)
		if err != nil {
			return nil, err
		}

		assignments, err := s.resolver.Resolve(item, candidates, now)
		if err != nil {
			if _, ok := err.(*errors.ErrInsufficientStock); ok {
				item.Unfulfillable = true
				order.Items = append(order.Items, item)
				continue
			}
			return nil, err
		}

		for _, a := range assignments {
			if err := s.applySLA(ctx, a); err != nil {
				return nil, err
			}
		}
		item.Assignments = assignments
		item.Status = domain.SkuStatusAssigned
		order.Items = append(order.Items, item)
	}

	agg := domain.AggregateStatus(order.Items)
	order.Status = agg.Status
	order.StatusReason = agg.Reason
	order.PartialReturn = agg.PartialReturn

	entry := &domain.AuditLogEntry{
		Action:    domain.AuditActionOrderCreated,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		OrderID:   &order.ID,
		After: map[string]interface{}{
			"status":     order.Status,
			"item_count": len(order.Items),
		},
	}
	if err := s.repos.Order.Create(ctx, order, []*domain.AuditLogEntry{entry}); err != nil {
		return nil, err
	}

	s.publisher.Publish(events.SubjectOrderCreated, map[string]interface{}{
		"order_id":     order.ID.String(),
		"customer_ref": order.CustomerRef,
		"status":       order.Status,
	})
	return order, nil
}

// enrichTitle fills a missing SKU title from the catalog service. Best
// effort, catalog outages never block acceptance.
func (s *OrderService) enrichTitle(ctx context.Context, item *domain.SkuLineItem) {
	if item.Title != "" || s.catalog == nil || !s.catalog.Enabled() {
		return
	}
	product, err := s.catalog.GetProduct(ctx, item.SKU)
	if err != nil {
		s.logger.Warn("Failed to fetch catalog metadata", zap.String("sku", item.SKU), zap.Error(err))
		return
	}
	item.Title = product.Title
}

// applySLA computes and caches the assignment's deadline. A dealer without a
// profile gets the assignment flagged sla_unknown instead of a guessed
// default window; such assignments are excluded from violation detection.
func (s *OrderService) applySLA(ctx context.Context, a *domain.DealerAssignment) error {
	profile, err := s.repos.Dealer.GetSLAProfile(ctx, a.DealerID)
	if err != nil {
		if _, ok := err.(*errors.ErrNotFound); ok {
			s.logger.Warn("Dealer has no SLA profile, assignment excluded from violation detection",
				zap.String("dealer_id", a.DealerID.String()), zap.String("sku", a.SKU))
			a.SLAUnknown = true
			return nil
		}
		return err
	}

	deadline, err := sla.Compute(a.AssignedAt, profile, s.loc)
	if err != nil {
		s.logger.Warn("Malformed SLA profile, assignment excluded from violation detection",
			zap.String("dealer_id", a.DealerID.String()), zap.Error(err))
		a.SLAUnknown = true
		return nil
	}

	a.ExpectedDispatchAt = &deadline.Dispatch
	a.ExpectedFulfillmentAt = &deadline.Fulfillment
	return nil
}

// TransitionSKU applies one SKU-level status transition and recomputes the
// order-level status as a single atomic unit. A dealer actor moves only its
// own assignments; the SKU's status is the least progressed of its open
// assignments, so a split SKU counts as Delivered only when every dealer has
// delivered. Replaying an already applied transition is a no-op that writes
// no audit entry.
func (s *OrderService) TransitionSKU(ctx context.Context, orderID uuid.UUID, skuCode string, target domain.SkuStatus, actor Actor, at time.Time) (*domain.Order, error) {
	if !target.IsValid() {
		return nil, &errors.ErrValidation{Field: "status", Message: "unknown status " + string(target)}
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		order, err := s.repos.Order.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		item := order.ItemBySKU(skuCode)
		if item == nil {
			return nil, &errors.ErrNotFound{Resource: "SKU", ID: skuCode}
		}
		if item.Status == target {
			return order, nil
		}
		if !item.Status.CanTransitionTo(target) {
			return nil, &errors.ErrInvalidStateTransition{
				Entity: "SKU " + skuCode,
				From:   item.Status,
				To:     target,
			}
		}

		open := item.OpenAssignments()
		touched := s.applyToAssignments(open, target, actor, at)
		if len(touched) == 0 {
			mine := open
			if actor.DealerID != nil {
				mine = nil
				for _, a := range open {
					if a.DealerID == *actor.DealerID {
						mine = append(mine, a)
					}
				}
				if len(mine) == 0 {
					return nil, &errors.ErrNotFound{Resource: "assignment", ID: skuCode}
				}
			}
			if len(mine) == 0 {
				// item without open assignments, nothing to move
				return order, nil
			}
			for _, a := range mine {
				if a.Status == target {
					// already applied on this actor's side of a split
					return order, nil
				}
			}
			return nil, &errors.ErrInvalidStateTransition{
				Entity: "SKU " + skuCode,
				From:   mine[0].Status,
				To:     target,
			}
		}

		prevItemStatus := item.Status
		item.Status = skuStatusFromAssignments(open, item.Status)
		stampItem(item, at)

		prevStatus := order.Status
		prevReason := order.StatusReason
		recompute(order)

		entry := &domain.AuditLogEntry{
			Action:    domain.AuditActionStatusChange,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			OrderID:   &order.ID,
			SKU:       &item.SKU,
			Before: map[string]interface{}{
				"sku_status":   prevItemStatus,
				"order_status": prevStatus,
			},
			After: map[string]interface{}{
				"sku_status":   item.Status,
				"order_status": order.Status,
			},
		}

		expected := order.Version
		err = s.repos.Order.UpdateAggregate(ctx, order, expected, []*domain.AuditLogEntry{entry})
		if err != nil {
			if _, ok := err.(*errors.ErrVersionConflict); ok {
				lastErr = err
				s.logger.Debug("Aggregate version conflict, retrying",
					zap.String("order_id", orderID.String()), zap.Int("attempt", attempt+1))
				continue
			}
			return nil, err
		}

		if order.Status != prevStatus || order.StatusReason != prevReason {
			s.publisher.Publish(events.SubjectOrderStatusChange, map[string]interface{}{
				"order_id": order.ID.String(),
				"from":     prevStatus,
				"to":       order.Status,
				"reason":   order.StatusReason,
				"sku":      item.SKU,
			})
		}

		// reactive SLA evaluation for assignments that just completed;
		// any terminal status past the deadline is a breach, including a
		// return or a cancel of an already overdue assignment. Runs after
		// the commit so its failure never rolls back the status change.
		for _, a := range touched {
			if a.Status.IsTerminal() {
				if err := s.violations.EvaluateAssignment(ctx, a, at); err != nil {
					s.logger.Error("Reactive SLA evaluation failed",
						zap.String("assignment_id", a.ID.String()), zap.Error(err))
				}
			}
		}
		return order, nil
	}
	return nil, lastErr
}

func (s *OrderService) applyToAssignments(open []*domain.DealerAssignment, target domain.SkuStatus, actor Actor, at time.Time) []*domain.DealerAssignment {
	var touched []*domain.DealerAssignment
	for _, a := range open {
		if actor.DealerID != nil && a.DealerID != *actor.DealerID {
			continue
		}
		if !a.Status.CanTransitionTo(target) {
			continue
		}
		a.Status = target
		if target.IsTerminal() {
			completedAt := at
			a.CompletedAt = &completedAt
		}
		touched = append(touched, a)
	}
	return touched
}

// UpdateTracking writes courier tracking fields onto a SKU. A terminal update
// (delivered=true) additionally applies the Delivered transition, which in
// turn triggers reactive violation evaluation.
func (s *OrderService) UpdateTracking(ctx context.Context, orderID uuid.UUID, skuCode string, upd TrackingUpdate, actor Actor) (*domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		order, err := s.repos.Order.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		item := order.ItemBySKU(skuCode)
		if item == nil {
			return nil, &errors.ErrNotFound{Resource: "SKU", ID: skuCode}
		}

		item.TrackingCarrier = &upd.Carrier
		item.TrackingNumber = &upd.Number
		item.TrackingURL = upd.URL

		entry := &domain.AuditLogEntry{
			Action:    domain.AuditActionTrackingUpdate,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			OrderID:   &order.ID,
			SKU:       &item.SKU,
			After: map[string]interface{}{
				"carrier":         upd.Carrier,
				"tracking_number": upd.Number,
			},
		}

		expected := order.Version
		err = s.repos.Order.UpdateAggregate(ctx, order, expected, []*domain.AuditLogEntry{entry})
		if err != nil {
			if _, ok := err.(*errors.ErrVersionConflict); ok {
				lastErr = err
				continue
			}
			return nil, err
		}

		if upd.Delivered {
			deliveredAt := s.now()
			if upd.DeliveredAt != nil {
				deliveredAt = *upd.DeliveredAt
			}
			return s.TransitionSKU(ctx, orderID, skuCode, domain.SkuStatusDelivered, actor, deliveredAt)
		}
		return order, nil
	}
	return nil, lastErr
}

// OverrideStatus sets the order-level status directly, bypassing aggregation.
// Admin only; always audited as an override. The next SKU-level transition
// recomputes the aggregate and drops the override.
func (s *OrderService) OverrideStatus(ctx context.Context, orderID uuid.UUID, newStatus domain.OrderStatus, reason string, actor Actor) (*domain.Order, error) {
	if !actor.Role.IsAdmin() {
		return nil, &errors.ErrUnauthorized{Message: "status override requires an admin role"}
	}
	if !newStatus.IsValid() {
		return nil, &errors.ErrValidation{Field: "status", Message: "unknown status " + string(newStatus)}
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		order, err := s.repos.Order.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.Status == newStatus && order.Overridden {
			return order, nil
		}

		prevStatus := order.Status
		order.Status = newStatus
		order.Overridden = true
		order.StatusReason = "overridden by admin: " + reason

		entry := &domain.AuditLogEntry{
			Action:    domain.AuditActionAdminOverride,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			OrderID:   &order.ID,
			Before:    map[string]interface{}{"order_status": prevStatus},
			After: map[string]interface{}{
				"order_status": newStatus,
				"reason":       reason,
			},
		}

		expected := order.Version
		err = s.repos.Order.UpdateAggregate(ctx, order, expected, []*domain.AuditLogEntry{entry})
		if err != nil {
			if _, ok := err.(*errors.ErrVersionConflict); ok {
				lastErr = err
				continue
			}
			return nil, err
		}

		s.publisher.Publish(events.SubjectOrderStatusChange, map[string]interface{}{
			"order_id":   order.ID.String(),
			"from":       prevStatus,
			"to":         newStatus,
			"overridden": true,
		})
		return order, nil
	}
	return nil, lastErr
}

// ReassignAssignment moves one open assignment to another dealer: the old
// record is closed, a replacement is opened with a fresh SLA deadline for the
// new dealer, and the order aggregate is recomputed. The replacement starts
// at Assigned, so a SKU that had progressed regresses until the new dealer
// catches up.
func (s *OrderService) ReassignAssignment(ctx context.Context, assignmentID, toDealerID uuid.UUID, actor Actor) (*domain.Order, error) {
	if !actor.Role.IsAdmin() {
		return nil, &errors.ErrUnauthorized{Message: "reassignment requires an admin role"}
	}

	old, err := s.repos.Assignment.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if old.ClosedAt != nil {
		return nil, &errors.ErrValidation{Field: "assignment", Message: "assignment is already closed"}
	}
	if old.CompletedAt != nil {
		return nil, &errors.ErrValidation{Field: "assignment", Message: "assignment already reached a terminal status"}
	}

	dealer, err := s.repos.Dealer.GetByID(ctx, toDealerID)
	if err != nil {
		return nil, err
	}
	if !dealer.IsActive {
		return nil, &errors.ErrValidation{Field: "dealer_id", Message: "dealer is disabled"}
	}
	if dealer.ID == old.DealerID {
		return nil, &errors.ErrValidation{Field: "dealer_id", Message: "assignment already belongs to this dealer"}
	}

	now := s.now()
	replacement := &domain.DealerAssignment{
		ID:            uuid.New(),
		OrderID:       old.OrderID,
		SkuLineItemID: old.SkuLineItemID,
		SKU:           old.SKU,
		DealerID:      toDealerID,
		Quantity:      old.Quantity,
		Status:        domain.SkuStatusAssigned,
		AssignedAt:    now,
	}
	if stock, err := s.repos.Dealer.ListStock(ctx, old.SKU); err == nil {
		for _, entry := range stock {
			if entry.DealerID == toDealerID {
				replacement.Margin = entry.Margin
				replacement.Priority = entry.Priority
				replacement.InStock = entry.InStock
				break
			}
		}
	}
	if err := s.applySLA(ctx, replacement); err != nil {
		return nil, err
	}

	if err := s.repos.Assignment.Reassign(ctx, old.ID, replacement); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		order, err := s.repos.Order.GetByID(ctx, old.OrderID)
		if err != nil {
			return nil, err
		}
		item := order.ItemBySKU(old.SKU)
		if item == nil {
			return nil, &errors.ErrNotFound{Resource: "SKU", ID: old.SKU}
		}

		prevItemStatus := item.Status
		item.Status = skuStatusFromAssignments(item.OpenAssignments(), item.Status)
		recompute(order)

		entry := &domain.AuditLogEntry{
			Action:    domain.AuditActionReassignment,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			OrderID:   &order.ID,
			SKU:       &item.SKU,
			DealerID:  &toDealerID,
			Before: map[string]interface{}{
				"dealer_id":  old.DealerID.String(),
				"sku_status": prevItemStatus,
			},
			After: map[string]interface{}{
				"dealer_id":     toDealerID.String(),
				"assignment_id": replacement.ID.String(),
				"sku_status":    item.Status,
			},
		}

		expected := order.Version
		err = s.repos.Order.UpdateAggregate(ctx, order, expected, []*domain.AuditLogEntry{entry})
		if err != nil {
			if _, ok := err.(*errors.ErrVersionConflict); ok {
				lastErr = err
				continue
			}
			return nil, err
		}
		return order, nil
	}
	return nil, lastErr
}

// GetOrder loads the full aggregate
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.repos.Order.GetByID(ctx, orderID)
}

// ListOrders lists orders, optionally filtered by status
func (s *OrderService) ListOrders(ctx context.Context, status *domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	return s.repos.Order.List(ctx, status, limit, offset)
}

// StatusBreakdown returns the order status with its per-SKU decomposition
// and the textual status reason
func (s *OrderService) StatusBreakdown(ctx context.Context, orderID uuid.UUID) (*StatusBreakdown, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	breakdown := &StatusBreakdown{
		OrderID:       order.ID.String(),
		Status:        string(order.Status),
		StatusReason:  order.StatusReason,
		PartialReturn: order.PartialReturn,
		Overridden:    order.Overridden,
		Items:         make([]SkuBreakdown, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		sku := SkuBreakdown{
			SKU:           item.SKU,
			Status:        string(item.Status),
			Quantity:      item.Quantity,
			Unfulfillable: item.Unfulfillable,
			PackedAt:      item.PackedAt,
			ShippedAt:     item.ShippedAt,
			DeliveredAt:   item.DeliveredAt,
			Assignments:   make([]AssignmentBreakdown, 0, len(item.Assignments)),
		}
		for _, a := range item.OpenAssignments() {
			sku.Assignments = append(sku.Assignments, AssignmentBreakdown{
				AssignmentID:          a.ID.String(),
				DealerID:              a.DealerID.String(),
				Quantity:              a.Quantity,
				Status:                string(a.Status),
				SLAUnknown:            a.SLAUnknown,
				ExpectedFulfillmentAt: a.ExpectedFulfillmentAt,
			})
		}
		breakdown.Items = append(breakdown.Items, sku)
	}
	return breakdown, nil
}

// recompute refreshes the derived order fields from the line items and drops
// any standing admin override
func recompute(order *domain.Order) {
	agg := domain.AggregateStatus(order.Items)
	order.Status = agg.Status
	order.StatusReason = agg.Reason
	order.PartialReturn = agg.PartialReturn
	order.Overridden = false
}

// skuStatusFromAssignments derives a SKU's status from its open assignments:
// the least progressed assignment wins, so a quantity-split SKU reaches a
// stage only when every dealer has. Returned counts as fully progressed; a
// SKU is Returned once every open assignment is delivered or returned with at
// least one return.
func skuStatusFromAssignments(open []*domain.DealerAssignment, fallback domain.SkuStatus) domain.SkuStatus {
	if len(open) == 0 {
		return fallback
	}

	anyReturned := false
	allCancelled := true
	minRank := domain.SkuStatusDelivered.Rank()
	for _, a := range open {
		switch a.Status {
		case domain.SkuStatusCancelled:
			continue
		case domain.SkuStatusReturned:
			anyReturned = true
			allCancelled = false
			continue
		}
		allCancelled = false
		if r := a.Status.Rank(); r < minRank {
			minRank = r
		}
	}
	if allCancelled {
		return domain.SkuStatusCancelled
	}
	if minRank == domain.SkuStatusDelivered.Rank() && anyReturned {
		return domain.SkuStatusReturned
	}

	for _, status := range []domain.SkuStatus{
		domain.SkuStatusPending, domain.SkuStatusAssigned, domain.SkuStatusPacked,
		domain.SkuStatusShipped, domain.SkuStatusDelivered,
	} {
		if status.Rank() == minRank {
			return status
		}
	}
	return fallback
}

// stampItem records the progress timestamps as the SKU crosses each stage.
// Cancel and Return branches leave the progress timestamps as they were.
func stampItem(item *domain.SkuLineItem, at time.Time) {
	if item.Status == domain.SkuStatusCancelled || item.Status == domain.SkuStatusReturned {
		return
	}
	if item.Status.AtLeast(domain.SkuStatusPacked) && item.PackedAt == nil {
		t := at
		item.PackedAt = &t
	}
	if item.Status.AtLeast(domain.SkuStatusShipped) && item.ShippedAt == nil {
		t := at
		item.ShippedAt = &t
	}
	if item.Status.AtLeast(domain.SkuStatusDelivered) && item.DeliveredAt == nil {
		t := at
		item.DeliveredAt = &t
	}
}
