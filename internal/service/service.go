package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"salesdesk/internal/backend"
	"salesdesk/internal/cart"
	"salesdesk/internal/catalog"
	"salesdesk/internal/domain"
	"salesdesk/internal/events"
	"salesdesk/internal/receipt"
	"salesdesk/internal/sale"
	"salesdesk/internal/store"
	"salesdesk/internal/telemetry"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Backend is everything the service asks of the remote API beyond what the
// pipeline already posts.
type Backend interface {
	sale.Backend
	ListSales(ctx context.Context, token string, filter backend.SaleFilter) ([]domain.Sale, error)
	ListPayments(ctx context.Context, token string) ([]domain.Payment, error)
	CreatePayment(ctx context.Context, token string, idempotencyKey string, in backend.PaymentInput) (domain.Payment, error)
}

type Config struct {
	StoreID  string
	Backend  Backend
	Loader   sale.SnapshotLoader
	Pipeline *sale.Pipeline
	Exporter *receipt.Exporter
	Archive  store.Repository
	Events   events.Publisher
	Metrics  *telemetry.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

type Service struct {
	storeID  string
	backend  Backend
	loader   sale.SnapshotLoader
	pipeline *sale.Pipeline
	exporter *receipt.Exporter
	archive  store.Repository
	events   events.Publisher
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	workspaces map[string]*workspace
}

// workspace is one actor's session state. Every operation on it holds mu for
// its whole duration, so a submission never interleaves with cart edits.
// users and lastUsed belong to the registry and are guarded by Service.mu.
type workspace struct {
	mu             sync.Mutex
	actor          domain.Actor
	snapshot       *catalog.Snapshot
	cart           *cart.Cart
	warehouseID    int64
	counterpartyID int64

	users    int
	lastUsed time.Time
}

func New(cfg Config) *Service {
	if cfg.StoreID == "" {
		cfg.StoreID = "main-store"
	}
	if cfg.Events == nil {
		cfg.Events = events.NoopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Exporter == nil {
		cfg.Exporter = receipt.NewExporter("", nil, nil)
	}

	return &Service{
		storeID:    cfg.StoreID,
		backend:    cfg.Backend,
		loader:     cfg.Loader,
		pipeline:   cfg.Pipeline,
		exporter:   cfg.Exporter,
		archive:    cfg.Archive,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.Named("service"),
		now:        cfg.Now,
		workspaces: make(map[string]*workspace),
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID <= 0 || !actor.Role.Valid() {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	return actor, nil
}

// withWorkspace runs fn with the caller's workspace locked. The workspace
// keeps the latest credential so follow-up backend calls use it.
func (s *Service) withWorkspace(ctx context.Context, fn func(ws *workspace) error) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}

	ws := s.acquire(actor.Key())
	defer s.release(ws)

	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.actor = actor
	return fn(ws)
}

// acquire finds or creates the workspace for key and pins it against
// eviction until the matching release.
func (s *Service) acquire(key string) *workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[key]
	if !ok {
		ws = &workspace{cart: cart.New()}
		s.workspaces[key] = ws
	}
	ws.users++
	ws.lastUsed = s.now()
	return ws
}

func (s *Service) release(ws *workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws.users--
	ws.lastUsed = s.now()
}

func (s *Service) ensureSnapshot(ctx context.Context, ws *workspace) error {
	if ws.snapshot != nil {
		return nil
	}
	snap, err := s.loader.Load(ctx, ws.actor)
	s.countSnapshotLoad(err)
	if err != nil {
		return err
	}
	ws.snapshot = snap
	return nil
}

func (s *Service) countSnapshotLoad(err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.SnapshotLoads.WithLabelValues(result).Inc()
}

// Snapshot returns the caller's catalog, loading it on first use. refresh
// drops any cached copy first.
func (s *Service) Snapshot(ctx context.Context, refresh bool) (domain.SnapshotResponse, error) {
	var resp domain.SnapshotResponse
	err := s.withWorkspace(ctx, func(ws *workspace) error {
		if refresh {
			if err := s.loader.Invalidate(ctx, ws.actor); err != nil {
				s.logger.Warn("snapshot invalidate failed", zap.String("actor", ws.actor.Key()), zap.Error(err))
			}
			ws.snapshot = nil
		}
		if err := s.ensureSnapshot(ctx, ws); err != nil {
			return err
		}
		resp = ws.snapshot.Response()
		return nil
	})
	return resp, err
}

// CloseWorkspace forgets the caller's snapshot and cart.
func (s *Service) CloseWorkspace(ctx context.Context) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.workspaces, actor.Key())
	s.mu.Unlock()
	return nil
}

// EvictIdle drops workspaces untouched since before cutoff and reports how
// many went. Workspaces with a call in flight are kept.
func (s *Service) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, ws := range s.workspaces {
		if ws.users > 0 || !ws.lastUsed.Before(cutoff) {
			continue
		}
		delete(s.workspaces, key)
		evicted++
	}
	return evicted
}

// RunEvictor evicts idle workspaces every interval until ctx ends.
func (s *Service) RunEvictor(ctx context.Context, interval time.Duration, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(s.now().Add(-idle)); n > 0 {
				s.logger.Info("evicted idle workspaces", zap.Int("count", n))
			}
		}
	}
}

func (s *Service) Cart(ctx context.Context) (domain.CartView, error) {
	var view domain.CartView
	err := s.withWorkspace(ctx, func(ws *workspace) error {
		view = ws.cart.View(ws.snapshot)
		return nil
	})
	return view, err
}

func (s *Service) AddLine(ctx context.Context, req domain.AddLineRequest) (domain.CartView, error) {
	var view domain.CartView
	err := s.withWorkspace(ctx, func(ws *workspace) error {
		if err := s.ensureSnapshot(ctx, ws); err != nil {
			return err
		}
		price := decimal.Zero
		if req.UnitPrice != nil {
			price = *req.UnitPrice
		}
		if err := ws.cart.AddOrMergeLine(ws.snapshot, req.ProductID, req.Quantity, price, req.Defective); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.CartLinesAdded.WithLabelValues(string(ws.actor.Role)).Inc()
		}
		view = ws.cart.View(ws.snapshot)
		return nil
	})
	return view, err
}

func (s *Service) RemoveLine(ctx context.Context, productID int64) (domain.CartView, error) {
	var view domain.CartView
	err := s.withWorkspace(ctx, func(ws *workspace) error {
		ws.cart.RemoveLine(productID)
		view = ws.cart.View(ws.snapshot)
		return nil
	})
	return view, err
}

// Reprice stages an override for the product's next add.
func (s *Service) Reprice(ctx context.Context, req domain.RepriceRequest) (domain.CartView, error) {
	var view domain.CartView
	err := s.withWorkspace(ctx, func(ws *workspace) error {
		if err := ws.cart.RepriceLine(req.ProductID, req.Price); err != nil {
			return err
		}
		view = ws.cart.View(ws.snapshot)
		return nil
	})
	return view, err
}

func (s *Service) ClearCart(ctx context.Context) (domain.CartView, error) {
	var view domain.CartView
	err := s.withWorkspace(ctx, func(ws *workspace) error {
		ws.cart.Clear()
		view = ws.cart.View(ws.snapshot)
		return nil
	})
	return view, err
}

// SubmitSale posts the caller's cart as a sale.
func (s *Service) SubmitSale(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResponse, error) {
	return s.submit(ctx, req, domain.ReceiptSale)
}

// SubmitReturn posts the caller's cart as a dealer return request.
func (s *Service) SubmitReturn(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResponse, error) {
	return s.submit(ctx, req, domain.ReceiptReturn)
}

func (s *Service) submit(ctx context.Context, req domain.SubmitRequest, kind domain.ReceiptKind) (domain.SubmitResponse, error) {
	var resp domain.SubmitResponse
	err := s.withWorkspace(ctx, func(ws *workspace) error {
		if kind == domain.ReceiptReturn && ws.actor.Role != domain.RoleDealer {
			return fmt.Errorf("return.submit: dealer role required: %w", domain.ErrForbidden)
		}
		if err := s.ensureSnapshot(ctx, ws); err != nil {
			return err
		}
		if req.WarehouseID > 0 {
			ws.warehouseID = req.WarehouseID
		}
		if req.CounterpartyID > 0 {
			ws.counterpartyID = req.CounterpartyID
		}

		in := sale.Request{
			Actor:          ws.actor,
			Snapshot:       ws.snapshot,
			Cart:           ws.cart,
			WarehouseID:    ws.warehouseID,
			CounterpartyID: ws.counterpartyID,
		}
		var (
			result *sale.Result
			err    error
		)
		if kind == domain.ReceiptReturn {
			result, err = s.pipeline.SubmitReturn(ctx, in)
		} else {
			result, err = s.pipeline.Submit(ctx, in)
		}
		if err != nil {
			return err
		}

		ws.snapshot = result.Snapshot
		s.countSnapshotLoad(result.SnapshotErr)
		resp.Receipt = result.Receipt
		if result.SnapshotErr != nil {
			resp.SnapshotError = domain.UserMessage(result.SnapshotErr)
		}
		if result.ReplyErr != nil {
			resp.ReceiptError = domain.UserMessage(result.ReplyErr)
		}

		action := "sale_post"
		if kind == domain.ReceiptReturn {
			action = "return_request"
		}
		s.logAudit(ctx, action, string(kind), result.Receipt.Code(),
			fmt.Sprintf("counterparty=%d,warehouse=%d,lines=%d,total=%s",
				result.Receipt.CounterpartyID, result.Receipt.WarehouseID, len(result.Receipt.Lines), result.Receipt.TotalSum.StringFixed(2)))
		return nil
	})
	return resp, err
}

func (s *Service) ListReturnRequests(ctx context.Context, status domain.ReturnStatus) ([]domain.DealerReturnRequest, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.pipeline.ListReturnRequests(ctx, actor, status)
}

// ReviewReturnRequest approves or rejects a pending return request.
func (s *Service) ReviewReturnRequest(ctx context.Context, id int64, approve bool, req domain.ReviewRequest) (domain.DealerReturnRequest, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.DealerReturnRequest{}, err
	}
	if id <= 0 {
		return domain.DealerReturnRequest{}, domain.NewValidationError("return.review", domain.FieldStatus, "return request id required")
	}

	var reviewed domain.DealerReturnRequest
	if approve {
		reviewed, err = s.pipeline.Approve(ctx, actor, id, req.ManagerPIN)
	} else {
		reviewed, err = s.pipeline.Reject(ctx, actor, id, req.ManagerPIN)
	}
	if err != nil {
		return domain.DealerReturnRequest{}, err
	}
	s.logAudit(ctx, "return_review", "return", fmt.Sprintf("return-%d", id), fmt.Sprintf("status=%s,note=%s", reviewed.Status, req.Note))
	return reviewed, nil
}

// Receipt loads an archived receipt the caller may see. Receipts belonging to
// someone else are reported as missing.
func (s *Service) Receipt(ctx context.Context, kind domain.ReceiptKind, saleID int64) (domain.Receipt, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Receipt{}, err
	}
	if !kind.Valid() || saleID <= 0 {
		return domain.Receipt{}, domain.ErrNotFound
	}
	if s.archive == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}

	found, err := s.archive.GetReceipt(ctx, s.storeID, kind, saleID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Receipt{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Receipt{}, err
	}
	if !found.Visible(actor) {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return *found, nil
}

// ExportReceipt re-renders an archived receipt without touching the backend.
func (s *Service) ExportReceipt(ctx context.Context, kind domain.ReceiptKind, saleID int64, format receipt.Format) (receipt.Artifact, error) {
	found, err := s.Receipt(ctx, kind, saleID)
	if err != nil {
		return receipt.Artifact{}, err
	}
	return s.exporter.Export(found, format)
}

func (s *Service) ListReceipts(ctx context.Context, filter store.ReceiptFilter) ([]domain.Receipt, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if s.archive == nil {
		return []domain.Receipt{}, nil
	}
	if actor.Role != domain.RoleAdmin {
		filter.ActorID = actor.ID
	}
	return s.archive.ListReceipts(ctx, s.storeID, filter)
}
