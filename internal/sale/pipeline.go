package sale

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"salesdesk/internal/backend"
	"salesdesk/internal/cart"
	"salesdesk/internal/catalog"
	"salesdesk/internal/domain"
	"salesdesk/internal/events"
	"salesdesk/internal/store"
	"salesdesk/internal/telemetry"
	"salesdesk/internal/xid"
)

// Backend is the part of the remote API the pipeline posts to.
type Backend interface {
	CreateSale(ctx context.Context, token string, idempotencyKey string, in backend.SaleInput) (domain.Sale, error)
	CreateReturnRequest(ctx context.Context, token string, idempotencyKey string, in backend.SaleInput) (domain.DealerReturnRequest, error)
	ListReturnRequests(ctx context.Context, token string, status domain.ReturnStatus) ([]domain.DealerReturnRequest, error)
	ApproveReturnRequest(ctx context.Context, token string, id int64) (domain.DealerReturnRequest, error)
	RejectReturnRequest(ctx context.Context, token string, id int64) (domain.DealerReturnRequest, error)
}

// SnapshotLoader reloads the catalog after a successful post.
type SnapshotLoader interface {
	Load(ctx context.Context, actor domain.Actor) (*catalog.Snapshot, error)
	Invalidate(ctx context.Context, actor domain.Actor) error
}

// PINVerifier checks the manager PIN required to review return requests.
type PINVerifier interface {
	ValidateManagerPIN(pin string) bool
}

type Config struct {
	StoreID string
	Backend Backend
	Loader  SnapshotLoader
	Archive store.Repository
	Events  events.Publisher
	PINs    PINVerifier
	Metrics *telemetry.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

type Pipeline struct {
	storeID string
	backend Backend
	loader  SnapshotLoader
	archive store.Repository
	events  events.Publisher
	pins    PINVerifier
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func New(cfg Config) *Pipeline {
	p := &Pipeline{
		storeID: cfg.StoreID,
		backend: cfg.Backend,
		loader:  cfg.Loader,
		archive: cfg.Archive,
		events:  cfg.Events,
		pins:    cfg.PINs,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if p.events == nil {
		p.events = events.NoopPublisher{}
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.Named("sale")
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Request carries everything one submission needs. Snapshot and Cart belong
// to the caller's workspace, which must hold its lock for the whole call.
type Request struct {
	Actor          domain.Actor
	Snapshot       *catalog.Snapshot
	Cart           *cart.Cart
	WarehouseID    int64
	CounterpartyID int64
}

// Result is a successful submission. The posted record stands even when the
// follow-up snapshot reload fails; SnapshotErr then says why Snapshot is the
// old one.
//
// ReplyErr is set when the backend accepted the record but its reply could not
// be decoded. The receipt then has no backend id and is not archived.
type Result struct {
	Receipt     domain.Receipt
	Snapshot    *catalog.Snapshot
	SnapshotErr error
	ReplyErr    error
}

// Validate checks the preconditions in order: warehouse, counterparty, then a
// non-empty cart. The first failure is returned.
func Validate(op string, req Request) error {
	if req.WarehouseID <= 0 {
		return domain.NewValidationError(op, domain.FieldWarehouse, "warehouse is not selected")
	}
	if _, ok := req.Snapshot.Warehouse(req.WarehouseID); !ok {
		return domain.NewValidationError(op, domain.FieldWarehouse, fmt.Sprintf("warehouse #%d is not available", req.WarehouseID))
	}
	if req.CounterpartyID <= 0 {
		return domain.NewValidationError(op, domain.FieldCounterparty, "counterparty is not selected")
	}
	if _, ok := req.Snapshot.Account(req.CounterpartyID); !ok {
		return domain.NewValidationError(op, domain.FieldCounterparty, fmt.Sprintf("counterparty #%d is not available", req.CounterpartyID))
	}
	if req.Cart == nil || req.Cart.IsEmpty() {
		return domain.NewValidationError(op, domain.FieldCart, "cart empty")
	}
	return nil
}

// ConditionFor classifies a return: unhealthy only when every line is
// defective. A mixed cart is healthy.
func ConditionFor(lines []domain.CartLine) domain.Condition {
	if len(lines) == 0 {
		return domain.ConditionHealthy
	}
	for _, line := range lines {
		if !line.Defective {
			return domain.ConditionHealthy
		}
	}
	return domain.ConditionUnhealthy
}

// Submit posts the cart as a sale.
func (p *Pipeline) Submit(ctx context.Context, req Request) (*Result, error) {
	const op = "sale.submit"
	if err := Validate(op, req); err != nil {
		p.countFailure("sale", "validation")
		return nil, err
	}

	lines := req.Cart.Lines()
	input := p.buildInput(req, lines, "")

	startedAt := time.Now()
	posted, err := p.backend.CreateSale(ctx, req.Actor.Token, xid.New("sale"), input)
	p.metrics.ObserveBackend("sales.create", time.Since(startedAt), err)
	replyErr := p.acceptedReply(req, "sale", err)
	if err != nil && replyErr == nil {
		p.countFailure("sale", "remote")
		p.logger.Warn("sale rejected by backend",
			zap.String("actor", req.Actor.Key()),
			zap.Int64("counterparty", req.CounterpartyID),
			zap.Error(err),
		)
		return nil, err
	}

	receipt := p.buildReceipt(domain.ReceiptSale, req, posted, lines, input)
	if p.metrics != nil {
		role := string(req.Actor.Role)
		p.metrics.SalesPosted.WithLabelValues(role).Inc()
		p.metrics.SaleValue.WithLabelValues(role).Observe(receipt.TotalSum.InexactFloat64())
	}
	result := p.finish(ctx, req, receipt, events.SubjectSalePosted)
	result.ReplyErr = replyErr
	return result, nil
}

// SubmitReturn posts the cart as a dealer return request.
func (p *Pipeline) SubmitReturn(ctx context.Context, req Request) (*Result, error) {
	const op = "return.submit"
	if err := Validate(op, req); err != nil {
		p.countFailure("return", "validation")
		return nil, err
	}

	lines := req.Cart.Lines()
	condition := ConditionFor(lines)
	input := p.buildInput(req, lines, condition)

	startedAt := time.Now()
	posted, err := p.backend.CreateReturnRequest(ctx, req.Actor.Token, xid.New("return"), input)
	p.metrics.ObserveBackend("returns.create", time.Since(startedAt), err)
	replyErr := p.acceptedReply(req, "return", err)
	if err != nil && replyErr == nil {
		p.countFailure("return", "remote")
		p.logger.Warn("return request rejected by backend",
			zap.String("actor", req.Actor.Key()),
			zap.Int64("counterparty", req.CounterpartyID),
			zap.Error(err),
		)
		return nil, err
	}

	receipt := p.buildReceipt(domain.ReceiptReturn, req, posted.Sale, lines, input)
	receipt.Condition = condition
	receipt.Status = posted.Status
	if receipt.Status == "" {
		receipt.Status = domain.ReturnPending
	}
	if p.metrics != nil {
		p.metrics.ReturnRequests.WithLabelValues(string(condition)).Inc()
	}
	result := p.finish(ctx, req, receipt, events.SubjectReturnRequested)
	result.ReplyErr = replyErr
	return result, nil
}

// acceptedReply returns err when it reports a 2xx whose body could not be
// decoded. Such a record exists on the backend, so the submission counts as
// posted and the cart must not be offered for a second post.
func (p *Pipeline) acceptedReply(req Request, flow string, err error) error {
	if err == nil || !domain.IsResponseError(err) {
		return nil
	}
	p.countFailure(flow, "reply")
	p.logger.Warn("backend accepted the record but its reply was unreadable",
		zap.String("flow", flow),
		zap.String("actor", req.Actor.Key()),
		zap.Int64("counterparty", req.CounterpartyID),
		zap.Error(err),
	)
	return err
}

func (p *Pipeline) buildInput(req Request, lines []domain.CartLine, condition domain.Condition) backend.SaleInput {
	items := make([]backend.ItemInput, 0, len(lines))
	for _, line := range lines {
		items = append(items, backend.ItemInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.UnitPrice,
			Defective: line.Defective,
		})
	}
	return backend.SaleInput{
		CounterpartyID: req.CounterpartyID,
		WarehouseID:    req.WarehouseID,
		Date:           p.now().Format(domain.DateLayout),
		TotalSum:       cart.Total(lines),
		Items:          items,
		Condition:      condition,
	}
}

// buildReceipt merges the server-assigned id and timestamp with the lines we
// sent. Names come from the snapshot the cart was built against.
func (p *Pipeline) buildReceipt(kind domain.ReceiptKind, req Request, posted domain.Sale, lines []domain.CartLine, input backend.SaleInput) domain.Receipt {
	saleLines := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		saleLines = append(saleLines, domain.SaleLine{
			ProductID:   line.ProductID,
			ProductName: req.Snapshot.ProductName(line.ProductID),
			Quantity:    line.Quantity,
			Price:       line.UnitPrice,
			Defective:   kind == domain.ReceiptReturn && line.Defective,
		})
	}

	date := posted.Date
	if date == "" {
		date = input.Date
	}
	createdAt := posted.CreatedAt
	if createdAt.IsZero() {
		createdAt = p.now().UTC()
	}
	issuedBy := req.Actor.Username
	if account, ok := req.Snapshot.Account(req.Actor.ID); ok {
		issuedBy = account.DisplayName()
	}

	return domain.Receipt{
		Kind:             kind,
		SaleID:           posted.ID,
		Date:             date,
		CreatedAt:        createdAt,
		CounterpartyID:   req.CounterpartyID,
		CounterpartyName: req.Snapshot.AccountName(req.CounterpartyID),
		WarehouseID:      req.WarehouseID,
		WarehouseName:    req.Snapshot.WarehouseName(req.WarehouseID),
		IssuedBy:         issuedBy,
		IssuedByID:       req.Actor.ID,
		Lines:            saleLines,
		TotalSum:         input.TotalSum,
	}
}

// finish runs the post-success steps in order. None of them can undo the
// posted record, so their failures are logged or reported, never returned.
func (p *Pipeline) finish(ctx context.Context, req Request, receipt domain.Receipt, subject string) *Result {
	req.Cart.Clear()

	if p.archive != nil && receipt.SaleID > 0 {
		if err := p.archive.SaveReceipt(ctx, p.storeID, receipt); err != nil {
			p.logger.Warn("archive receipt failed", zap.String("receipt", receipt.Code()), zap.Error(err))
		}
	}
	p.publish(ctx, subject, req.Actor, receipt)

	result := &Result{Receipt: receipt, Snapshot: req.Snapshot}
	if p.loader == nil {
		return result
	}
	if err := p.loader.Invalidate(ctx, req.Actor); err != nil {
		p.logger.Warn("snapshot invalidate failed", zap.String("actor", req.Actor.Key()), zap.Error(err))
	}
	snap, err := p.loader.Load(ctx, req.Actor)
	if err != nil {
		p.logger.Warn("snapshot reload failed after post",
			zap.String("actor", req.Actor.Key()),
			zap.String("receipt", receipt.Code()),
			zap.Error(err),
		)
		result.SnapshotErr = err
		return result
	}
	result.Snapshot = snap
	return result
}

// ListReturnRequests lists the backend's return requests, optionally by status.
func (p *Pipeline) ListReturnRequests(ctx context.Context, actor domain.Actor, status domain.ReturnStatus) ([]domain.DealerReturnRequest, error) {
	if status != "" && status != domain.ReturnPending && status != domain.ReturnApproved && status != domain.ReturnRejected {
		return nil, domain.NewValidationError("return.list", domain.FieldStatus, fmt.Sprintf("unknown status %q", status))
	}
	return p.backend.ListReturnRequests(ctx, actor.Token, status)
}

// Approve accepts a pending return request. Only admins holding the manager
// PIN may review.
func (p *Pipeline) Approve(ctx context.Context, actor domain.Actor, id int64, pin string) (domain.DealerReturnRequest, error) {
	return p.review(ctx, actor, id, pin, domain.ReturnApproved)
}

// Reject declines a pending return request under the same rules as Approve.
func (p *Pipeline) Reject(ctx context.Context, actor domain.Actor, id int64, pin string) (domain.DealerReturnRequest, error) {
	return p.review(ctx, actor, id, pin, domain.ReturnRejected)
}

func (p *Pipeline) review(ctx context.Context, actor domain.Actor, id int64, pin string, decision domain.ReturnStatus) (domain.DealerReturnRequest, error) {
	op := "return.approve"
	if decision == domain.ReturnRejected {
		op = "return.reject"
	}

	if actor.Role != domain.RoleAdmin {
		return domain.DealerReturnRequest{}, fmt.Errorf("%s: admin role required: %w", op, domain.ErrForbidden)
	}
	if p.pins == nil || !p.pins.ValidateManagerPIN(pin) {
		return domain.DealerReturnRequest{}, fmt.Errorf("%s: invalid manager pin: %w", op, domain.ErrForbidden)
	}

	pending, err := p.backend.ListReturnRequests(ctx, actor.Token, domain.ReturnPending)
	if err != nil {
		return domain.DealerReturnRequest{}, err
	}
	found := false
	for _, candidate := range pending {
		if candidate.ID == id {
			found = true
			break
		}
	}
	if !found {
		return domain.DealerReturnRequest{}, domain.NewValidationError(op, domain.FieldStatus,
			fmt.Sprintf("return request #%d is not pending", id))
	}

	var reviewed domain.DealerReturnRequest
	startedAt := time.Now()
	if decision == domain.ReturnApproved {
		reviewed, err = p.backend.ApproveReturnRequest(ctx, actor.Token, id)
	} else {
		reviewed, err = p.backend.RejectReturnRequest(ctx, actor.Token, id)
	}
	p.metrics.ObserveBackend("returns."+string(decision), time.Since(startedAt), err)
	if err != nil {
		return domain.DealerReturnRequest{}, err
	}
	if reviewed.Status == "" || reviewed.Status == domain.ReturnPending {
		reviewed.Status = decision
	}

	if p.archive != nil {
		err := p.archive.UpdateReturnStatus(ctx, p.storeID, id, reviewed.Status)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("archive status update failed", zap.Int64("return_request", id), zap.Error(err))
		}
	}
	if p.metrics != nil {
		p.metrics.ReturnReviews.WithLabelValues(string(reviewed.Status)).Inc()
	}

	subject := events.SubjectReturnApproved
	if reviewed.Status == domain.ReturnRejected {
		subject = events.SubjectReturnRejected
	}
	p.publish(ctx, subject, actor, map[string]string{
		"return_request_id": strconv.FormatInt(id, 10),
		"status":            string(reviewed.Status),
	})
	return reviewed, nil
}

func (p *Pipeline) publish(ctx context.Context, subject string, actor domain.Actor, payload any) {
	evt, err := events.New(subject, p.storeID, actor, payload, p.now())
	if err == nil {
		err = p.events.Publish(ctx, evt)
	}
	if err != nil {
		p.logger.Warn("publish event failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (p *Pipeline) countFailure(flow string, kind string) {
	if p.metrics != nil {
		p.metrics.SubmissionFailures.WithLabelValues(flow, kind).Inc()
	}
}
