package sale

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdesk/internal/backend"
	"salesdesk/internal/cart"
	"salesdesk/internal/catalog"
	"salesdesk/internal/domain"
	"salesdesk/internal/events"
	"salesdesk/internal/store"
	"salesdesk/internal/store/memory"
	"salesdesk/internal/telemetry"
)

type fakeBackend struct {
	mu          sync.Mutex
	calls       int
	sales       []backend.SaleInput
	returns     []backend.SaleInput
	keys        []string
	tokens      []string
	err         error
	pending     []domain.DealerReturnRequest
	approved    []int64
	rejected    []int64
	nextID      int64
	reviewReply domain.ReturnStatus
}

func (f *fakeBackend) CreateSale(_ context.Context, token string, key string, in backend.SaleInput) (domain.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tokens = append(f.tokens, token)
	f.keys = append(f.keys, key)
	if f.err != nil {
		return domain.Sale{}, f.err
	}
	f.sales = append(f.sales, in)
	f.nextID++
	return domain.Sale{
		ID:             100 + f.nextID,
		CounterpartyID: in.CounterpartyID,
		WarehouseID:    in.WarehouseID,
		Date:           in.Date,
		TotalSum:       in.TotalSum,
		CreatedAt:      time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeBackend) CreateReturnRequest(_ context.Context, token string, key string, in backend.SaleInput) (domain.DealerReturnRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, key)
	if f.err != nil {
		return domain.DealerReturnRequest{}, f.err
	}
	f.returns = append(f.returns, in)
	f.nextID++
	return domain.DealerReturnRequest{
		Sale:      domain.Sale{ID: 500 + f.nextID, Date: in.Date, TotalSum: in.TotalSum},
		Condition: in.Condition,
		Status:    domain.ReturnPending,
	}, nil
}

func (f *fakeBackend) ListReturnRequests(_ context.Context, _ string, status domain.ReturnStatus) ([]domain.DealerReturnRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([]domain.DealerReturnRequest, 0)
	for _, r := range f.pending {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) ApproveReturnRequest(_ context.Context, _ string, id int64) (domain.DealerReturnRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.approved = append(f.approved, id)
	return domain.DealerReturnRequest{Sale: domain.Sale{ID: id}, Status: f.reviewReply}, nil
}

func (f *fakeBackend) RejectReturnRequest(_ context.Context, _ string, id int64) (domain.DealerReturnRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.rejected = append(f.rejected, id)
	return domain.DealerReturnRequest{Sale: domain.Sale{ID: id}, Status: domain.ReturnRejected}, nil
}

type fakeLoader struct {
	loads       int
	invalidated int
	err         error
	snap        *catalog.Snapshot
}

func (l *fakeLoader) Load(_ context.Context, _ domain.Actor) (*catalog.Snapshot, error) {
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return l.snap, nil
}

func (l *fakeLoader) Invalidate(_ context.Context, _ domain.Actor) error {
	l.invalidated++
	return nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type staticPIN string

func (s staticPIN) ValidateManagerPIN(pin string) bool { return pin == string(s) }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func snapshot() *catalog.Snapshot {
	return catalog.NewSnapshot(
		[]domain.Product{
			{ID: 1, Name: "Product A", Price: dec(1000), Stock: 10},
			{ID: 2, Name: "Product B", Price: dec(500), Stock: 10},
		},
		[]domain.Account{
			{ID: 7, Username: "north", FullName: "North Dealer", Role: domain.RoleDealer},
			{ID: 9, Username: "corner", FullName: "Corner Shop", Role: domain.RoleShop},
		},
		[]domain.Warehouse{{ID: 20, Name: "North Depot", ResponsibleID: 7}},
		time.Now(),
	)
}

type fixture struct {
	backend  *fakeBackend
	loader   *fakeLoader
	archive  *memory.Store
	events   *recordingPublisher
	pipeline *Pipeline
	actor    domain.Actor
	snap     *catalog.Snapshot
	cart     *cart.Cart
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	snap := snapshot()
	f := &fixture{
		backend: &fakeBackend{reviewReply: domain.ReturnApproved},
		loader:  &fakeLoader{snap: snapshot()},
		archive: memory.New(),
		events:  &recordingPublisher{},
		actor:   domain.Actor{ID: 7, Username: "north", Role: domain.RoleDealer, Token: "tok-7"},
		snap:    snap,
		cart:    cart.New(),
	}
	f.pipeline = New(Config{
		StoreID: "main",
		Backend: f.backend,
		Loader:  f.loader,
		Archive: f.archive,
		Events:  f.events,
		PINs:    staticPIN("246810"),
		Metrics: telemetry.New("test"),
		Now:     func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) },
	})
	return f
}

func (f *fixture) request() Request {
	return Request{Actor: f.actor, Snapshot: f.snap, Cart: f.cart, WarehouseID: 20, CounterpartyID: 9}
}

func TestSubmitRoundTrip(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cart.AddOrMergeLine(f.snap, 1, 2, dec(1000), false))
	require.NoError(t, f.cart.AddOrMergeLine(f.snap, 2, 1, dec(500), false))
	sent := f.cart.Lines()

	res, err := f.pipeline.Submit(context.Background(), f.request())
	require.NoError(t, err)

	receipt := res.Receipt
	assert.Equal(t, domain.ReceiptSale, receipt.Kind)
	assert.Equal(t, int64(101), receipt.SaleID)
	assert.True(t, receipt.TotalSum.Equal(dec(2500)), "total %s", receipt.TotalSum)
	require.Len(t, receipt.Lines, len(sent))
	for i, line := range receipt.Lines {
		assert.Equal(t, sent[i].ProductID, line.ProductID)
		assert.Equal(t, sent[i].Quantity, line.Quantity)
		assert.True(t, sent[i].UnitPrice.Equal(line.Price))
	}
	assert.Equal(t, "Product A", receipt.Lines[0].ProductName)
	assert.Equal(t, "Product B", receipt.Lines[1].ProductName)
	assert.Equal(t, "Corner Shop", receipt.CounterpartyName)
	assert.Equal(t, "North Depot", receipt.WarehouseName)
	assert.Equal(t, "North Dealer", receipt.IssuedBy)
	assert.Equal(t, "2026-10-19", receipt.Date)

	posted := f.backend.sales[0]
	assert.Equal(t, int64(9), posted.CounterpartyID)
	assert.Equal(t, int64(20), posted.WarehouseID)
	assert.Equal(t, "2026-10-19", posted.Date)
	assert.True(t, posted.TotalSum.Equal(dec(2500)))
	assert.Equal(t, "tok-7", f.backend.tokens[0])
	assert.NotEmpty(t, f.backend.keys[0])

	assert.Equal(t, domain.CartEmpty, f.cart.State())
	assert.Equal(t, 1, f.loader.invalidated)
	assert.Equal(t, 1, f.loader.loads)
	assert.NoError(t, res.SnapshotErr)

	archived, err := f.archive.GetReceipt(context.Background(), "main", domain.ReceiptSale, 101)
	require.NoError(t, err)
	assert.Equal(t, "Corner Shop", archived.CounterpartyName)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.SubjectSalePosted, f.events.events[0].Subject)
}

func TestPreconditionOrder(t *testing.T) {
	cases := []struct {
		name         string
		warehouse    int64
		counterparty int64
		fill         bool
		field        string
	}{
		{name: "nothing selected", warehouse: 0, counterparty: 0, fill: false, field: domain.FieldWarehouse},
		{name: "warehouse unknown", warehouse: 99, counterparty: 9, fill: true, field: domain.FieldWarehouse},
		{name: "no counterparty", warehouse: 20, counterparty: 0, fill: false, field: domain.FieldCounterparty},
		{name: "counterparty unknown", warehouse: 20, counterparty: 42, fill: true, field: domain.FieldCounterparty},
		{name: "empty cart", warehouse: 20, counterparty: 9, fill: false, field: domain.FieldCart},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.fill {
				require.NoError(t, f.cart.AddOrMergeLine(f.snap, 1, 1, decimal.Zero, false))
			}
			req := f.request()
			req.WarehouseID = tc.warehouse
			req.CounterpartyID = tc.counterparty

			_, err := f.pipeline.Submit(context.Background(), req)
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))
			assert.Equal(t, tc.field, domain.ValidationField(err))
			assert.Zero(t, f.backend.calls)
		})
	}
}

func TestEmptyCartNeverCallsBackend(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Submit(context.Background(), f.request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cart empty")

	_, err = f.pipeline.SubmitReturn(context.Background(), f.request())
	require.Error(t, err)
	assert.Equal(t, domain.FieldCart, domain.ValidationField(err))

	assert.Zero(t, f.backend.calls)
	assert.Zero(t, f.loader.loads)
}

func TestRemoteErrorLeavesCartIntact(t *testing.T) {
	f := newFixture(t)
	f.backend.err = &domain.RemoteError{Op: "sales.create", Status: 400, Detail: "Not enough stock in warehouse"}
	require.NoError(t, f.cart.AddOrMergeLine(f.snap, 1, 2, decimal.Zero, false))
	before := f.cart.Lines()

	_, err := f.pipeline.Submit(context.Background(), f.request())
	require.Error(t, err)
	assert.Equal(t, "Not enough stock in warehouse", domain.UserMessage(err))

	assert.Equal(t, domain.CartNonEmpty, f.cart.State())
	assert.Equal(t, before, f.cart.Lines())
	assert.Zero(t, f.loader.loads)
	assert.Empty(t, f.events.events)

	list, _ := f.archive.ListReceipts(context.Background(), "main", store.ReceiptFilter{})
	assert.Empty(t, list)
}

func TestRemoteErrorWithoutDetailUsesGenericMessage(t *testing.T) {
	f := newFixture(t)
	f.backend.err = &domain.RemoteError{Op: "sales.create", Err: errors.New("connection refused")}
	require.NoError(t, f.cart.AddOrMergeLine(f.snap, 1, 1, decimal.Zero, false))

	_, err := f.pipeline.Submit(context.Background(), f.request())
	require.Error(t, err)
	assert.Equal(t, domain.GenericRemoteMessage, domain.UserMessage(err))
	assert.False(t, f.cart.IsEmpty())
}

func TestUnreadableReplyCountsAsPosted(t *testing.T) {
	f := newFixture(t)
	f.backend.err = &domain.ResponseError{Op: "sales.create", Status: 201, Err: errors.New("decode response: unexpected EOF")}
	require.NoError(t, f.cart.AddOrMergeLine(f.snap, 1, 2, decimal.Zero, false))

	res, err := f.pipeline.Submit(context.Background(), f.request())
	require.NoError(t, err)
	require.Error(t, res.ReplyErr)
	assert.Equal(t, domain.UnreadableResponseMessage, domain.UserMessage(res.ReplyErr))
	assert.True(t, f.cart.IsEmpty(), "an accepted post must not be left in the cart for a second submit")
	assert.Equal(t, 1, f.loader.loads)
	assert.True(t, res.Receipt.TotalSum.Equal(dec(2000)))
	assert.False(t, res.Receipt.CreatedAt.IsZero())

	list, _ := f.archive.ListReceipts(context.Background(), "main", store.ReceiptFilter{})
	assert.Empty(t, list, "a receipt without a backend id is not archived")

	_, err = f.pipeline.Submit(context.Background(), f.request())
	require.Error(t, err)
	assert.Equal(t, domain.FieldCart, domain.ValidationField(err))
	assert.Equal(t, 1, f.backend.calls)
}

func TestSnapshotReloadFailureKeepsPostedSale(t *testing.T) {
	f := newFixture(t)
	f.loader.err = errors.New("backend down")
	require.NoError(t, f.cart.AddOrMergeLine(f.snap, 1, 1, decimal.Zero, false))

	res, err := f.pipeline.Submit(context.Background(), f.request())
	require.NoError(t, err)
	require.Error(t, res.SnapshotErr)
	assert.Same(t, f.snap, res.Snapshot)
	assert.Equal(t, int64(101), res.Receipt.SaleID)
	assert.True(t, f.cart.IsEmpty())
}

func TestReturnConditionClassification(t *testing.T) {
	cases := []struct {
		name      string
		defects   []bool
		condition domain.Condition
	}{
		{name: "all defective", defects: []bool{true, true}, condition: domain.ConditionUnhealthy},
		{name: "none defective", defects: []bool{false, false}, condition: domain.ConditionHealthy},
		// A mixed cart collapses to healthy. Kept as-is until the backend
		// contract says otherwise.
		{name: "mixed cart is healthy", defects: []bool{true, false}, condition: domain.ConditionHealthy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			for i, defective := range tc.defects {
				require.NoError(t, f.cart.AddOrMergeLine(f.snap, int64(i+1), 1, decimal.Zero, defective))
			}

			res, err := f.pipeline.SubmitReturn(context.Background(), f.request())
			require.NoError(t, err)
			assert.Equal(t, tc.condition, res.Receipt.Condition)
			assert.Equal(t, domain.ReturnPending, res.Receipt.Status)
			assert.Equal(t, tc.condition, f.backend.returns[0].Condition)
			assert.Equal(t, domain.ReceiptReturn, res.Receipt.Kind)
			require.Len(t, f.events.events, 1)
			assert.Equal(t, events.SubjectReturnRequested, f.events.events[0].Subject)
		})
	}
}

func TestConditionForEmpty(t *testing.T) {
	assert.Equal(t, domain.ConditionHealthy, ConditionFor(nil))
}

func TestApproveRequiresAdminAndPIN(t *testing.T) {
	f := newFixture(t)
	f.backend.pending = []domain.DealerReturnRequest{{Sale: domain.Sale{ID: 501}, Status: domain.ReturnPending}}
	admin := domain.Actor{ID: 1, Role: domain.RoleAdmin, Token: "tok-1"}

	_, err := f.pipeline.Approve(context.Background(), f.actor, 501, "246810")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.pipeline.Approve(context.Background(), admin, 501, "000000")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Zero(t, f.backend.calls)

	reviewed, err := f.pipeline.Approve(context.Background(), admin, 501, "246810")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnApproved, reviewed.Status)
	assert.Equal(t, []int64{501}, f.backend.approved)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.SubjectReturnApproved, f.events.events[0].Subject)
}

func TestReviewOnlyPendingRequests(t *testing.T) {
	f := newFixture(t)
	f.backend.pending = []domain.DealerReturnRequest{{Sale: domain.Sale{ID: 502}, Status: domain.ReturnApproved}}
	admin := domain.Actor{ID: 1, Role: domain.RoleAdmin}

	_, err := f.pipeline.Reject(context.Background(), admin, 502, "246810")
	require.Error(t, err)
	assert.Equal(t, domain.FieldStatus, domain.ValidationField(err))
	assert.Empty(t, f.backend.rejected)
}

func TestRejectUpdatesArchivedReturn(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cart.AddOrMergeLine(f.snap, 1, 1, decimal.Zero, true))
	res, err := f.pipeline.SubmitReturn(context.Background(), f.request())
	require.NoError(t, err)

	id := res.Receipt.SaleID
	f.backend.pending = []domain.DealerReturnRequest{{Sale: domain.Sale{ID: id}, Status: domain.ReturnPending}}
	_, err = f.pipeline.Reject(context.Background(), domain.Actor{ID: 1, Role: domain.RoleAdmin}, id, "246810")
	require.NoError(t, err)

	archived, err := f.archive.GetReceipt(context.Background(), "main", domain.ReceiptReturn, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnRejected, archived.Status)
}

func TestListReturnRequestsValidatesStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.ListReturnRequests(context.Background(), f.actor, "weird")
	require.Error(t, err)
	assert.Equal(t, domain.FieldStatus, domain.ValidationField(err))
}
