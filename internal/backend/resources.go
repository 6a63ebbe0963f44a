package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"salesdesk/internal/domain"
)

type productDTO struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type warehouseDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Responsible *int64 `json:"responsible"`
}

type stockDTO struct {
	ID        int64 `json:"id"`
	Warehouse int64 `json:"warehouse"`
	Product   int64 `json:"product"`
	Quantity  int   `json:"quantity"`
}

type userDTO struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	CreatedBy *int64 `json:"created_by"`
}

type itemDTO struct {
	Product   int64           `json:"product"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Defective bool            `json:"defective,omitempty"`
}

type salePayload struct {
	Counterparty int64           `json:"counterparty"`
	Warehouse    int64           `json:"warehouse"`
	Date         string          `json:"date"`
	TotalSum     decimal.Decimal `json:"total_sum"`
	Items        []itemDTO       `json:"items"`
	Condition    string          `json:"condition,omitempty"`
}

type saleDTO struct {
	ID           int64           `json:"id"`
	Counterparty int64           `json:"counterparty"`
	Warehouse    int64           `json:"warehouse"`
	Date         string          `json:"date"`
	TotalSum     decimal.Decimal `json:"total_sum"`
	CreatedAt    timestamp       `json:"created_at"`
	Items        []itemDTO       `json:"items"`
	Condition    string          `json:"condition"`
	Status       string          `json:"status"`
}

type paymentDTO struct {
	ID           int64           `json:"id"`
	Counterparty int64           `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	Date         string          `json:"date"`
	Note         string          `json:"note"`
	CreatedAt    timestamp       `json:"created_at"`
}

type loginDTO struct {
	AccessToken string `json:"access_token"`
	Access      string `json:"access"`
	Token       string `json:"token"`
}

// ItemInput is one submitted line.
type ItemInput struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
	Defective bool
}

// SaleInput is the create-sale payload. Condition is set only for dealer
// return requests.
type SaleInput struct {
	CounterpartyID int64
	WarehouseID    int64
	Date           string
	TotalSum       decimal.Decimal
	Items          []ItemInput
	Condition      domain.Condition
}

type PaymentInput struct {
	CounterpartyID int64
	Amount         decimal.Decimal
	Date           string
	Note           string
}

// SaleFilter narrows ListSales; zero values mean unbounded.
type SaleFilter struct {
	From           string
	To             string
	CounterpartyID int64
}

func (c *Client) Login(ctx context.Context, username string, password string) (string, error) {
	var resp loginDTO
	err := c.do(ctx, request{
		op:     "auth.login",
		method: http.MethodPost,
		path:   "auth/login/",
		body:   map[string]string{"username": username, "password": password},
	}, &resp)
	if err != nil {
		return "", err
	}
	for _, token := range []string{resp.AccessToken, resp.Access, resp.Token} {
		if strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), nil
		}
	}
	return "", &domain.RemoteError{Op: "auth.login", Detail: "auth service returned no token"}
}

func (c *Client) ListProducts(ctx context.Context, token string) ([]domain.Product, error) {
	rows, err := listAll[productDTO](ctx, c, "products.list", "products/", token)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, domain.Product{ID: row.ID, Name: row.Name, Price: row.Price})
	}
	return products, nil
}

func (c *Client) ListWarehouses(ctx context.Context, token string) ([]domain.Warehouse, error) {
	rows, err := listAll[warehouseDTO](ctx, c, "warehouses.list", "warehouses/", token)
	if err != nil {
		return nil, err
	}
	warehouses := make([]domain.Warehouse, 0, len(rows))
	for _, row := range rows {
		warehouse := domain.Warehouse{ID: row.ID, Name: row.Name}
		if row.Responsible != nil {
			warehouse.ResponsibleID = *row.Responsible
		}
		warehouses = append(warehouses, warehouse)
	}
	return warehouses, nil
}

func (c *Client) ListStock(ctx context.Context, token string) ([]domain.StockRecord, error) {
	rows, err := listAll[stockDTO](ctx, c, "stock.list", "warehouse-products/", token)
	if err != nil {
		return nil, err
	}
	records := make([]domain.StockRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.StockRecord{
			ID:          row.ID,
			WarehouseID: row.Warehouse,
			ProductID:   row.Product,
			Quantity:    row.Quantity,
		})
	}
	return records, nil
}

func (c *Client) ListAccounts(ctx context.Context, token string) ([]domain.Account, error) {
	rows, err := listAll[userDTO](ctx, c, "accounts.list", "users/", token)
	if err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(rows))
	for _, row := range rows {
		account := domain.Account{
			ID:       row.ID,
			Username: row.Username,
			FullName: row.FullName,
			Role:     domain.Role(strings.ToLower(strings.TrimSpace(row.Role))),
		}
		if row.CreatedBy != nil {
			account.CreatedBy = *row.CreatedBy
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (c *Client) CreateSale(ctx context.Context, token string, idempotencyKey string, in SaleInput) (domain.Sale, error) {
	var resp saleDTO
	err := c.do(ctx, request{
		op:             "sales.create",
		method:         http.MethodPost,
		path:           "sales/",
		token:          token,
		body:           toPayload(in, false),
		idempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return domain.Sale{}, err
	}
	return resp.toSale(), nil
}

func (c *Client) ListSales(ctx context.Context, token string, filter SaleFilter) ([]domain.Sale, error) {
	query := url.Values{}
	if filter.From != "" {
		query.Set("date_from", filter.From)
	}
	if filter.To != "" {
		query.Set("date_to", filter.To)
	}
	if filter.CounterpartyID > 0 {
		query.Set("counterparty", fmt.Sprint(filter.CounterpartyID))
	}
	path := "sales/"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	rows, err := listAll[saleDTO](ctx, c, "sales.list", path, token)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, row.toSale())
	}
	return sales, nil
}

func (c *Client) CreateReturnRequest(ctx context.Context, token string, idempotencyKey string, in SaleInput) (domain.DealerReturnRequest, error) {
	var resp saleDTO
	err := c.do(ctx, request{
		op:             "returns.create",
		method:         http.MethodPost,
		path:           "dealer-return-requests/",
		token:          token,
		body:           toPayload(in, true),
		idempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return domain.DealerReturnRequest{}, err
	}
	out := resp.toReturnRequest()
	if out.Condition == "" {
		out.Condition = in.Condition
	}
	if out.Status == "" {
		out.Status = domain.ReturnPending
	}
	return out, nil
}

func (c *Client) ListReturnRequests(ctx context.Context, token string, status domain.ReturnStatus) ([]domain.DealerReturnRequest, error) {
	path := "dealer-return-requests/"
	if status != "" {
		path += "?" + url.Values{"status": {string(status)}}.Encode()
	}
	rows, err := listAll[saleDTO](ctx, c, "returns.list", path, token)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DealerReturnRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toReturnRequest())
	}
	return out, nil
}

func (c *Client) ApproveReturnRequest(ctx context.Context, token string, id int64) (domain.DealerReturnRequest, error) {
	return c.reviewReturnRequest(ctx, token, id, "approve")
}

func (c *Client) RejectReturnRequest(ctx context.Context, token string, id int64) (domain.DealerReturnRequest, error) {
	return c.reviewReturnRequest(ctx, token, id, "reject")
}

func (c *Client) reviewReturnRequest(ctx context.Context, token string, id int64, action string) (domain.DealerReturnRequest, error) {
	var resp saleDTO
	err := c.do(ctx, request{
		op:     "returns." + action,
		method: http.MethodPost,
		path:   fmt.Sprintf("dealer-return-requests/%d/%s/", id, action),
		token:  token,
		body:   map[string]any{},
	}, &resp)
	if err != nil {
		return domain.DealerReturnRequest{}, err
	}
	out := resp.toReturnRequest()
	if out.ID == 0 {
		out.ID = id
	}
	return out, nil
}

func (c *Client) ListPayments(ctx context.Context, token string) ([]domain.Payment, error) {
	rows, err := listAll[paymentDTO](ctx, c, "payments.list", "payments/", token)
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.toPayment())
	}
	return payments, nil
}

func (c *Client) CreatePayment(ctx context.Context, token string, idempotencyKey string, in PaymentInput) (domain.Payment, error) {
	var resp paymentDTO
	err := c.do(ctx, request{
		op:     "payments.create",
		method: http.MethodPost,
		path:   "payments/",
		token:  token,
		body: paymentDTO{
			Counterparty: in.CounterpartyID,
			Amount:       in.Amount,
			Date:         in.Date,
			Note:         in.Note,
		},
		idempotencyKey: idempotencyKey,
	}, &resp)
	if err != nil {
		return domain.Payment{}, err
	}
	return resp.toPayment(), nil
}

func toPayload(in SaleInput, withCondition bool) salePayload {
	items := make([]itemDTO, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, itemDTO{
			Product:   item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Defective: withCondition && item.Defective,
		})
	}
	payload := salePayload{
		Counterparty: in.CounterpartyID,
		Warehouse:    in.WarehouseID,
		Date:         in.Date,
		TotalSum:     in.TotalSum,
		Items:        items,
	}
	if withCondition {
		payload.Condition = string(in.Condition)
	}
	return payload
}

func (d saleDTO) toSale() domain.Sale {
	lines := make([]domain.SaleLine, 0, len(d.Items))
	for _, item := range d.Items {
		lines = append(lines, domain.SaleLine{
			ProductID: item.Product,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Defective: item.Defective,
		})
	}
	return domain.Sale{
		ID:             d.ID,
		CounterpartyID: d.Counterparty,
		WarehouseID:    d.Warehouse,
		Date:           d.Date,
		TotalSum:       d.TotalSum,
		CreatedAt:      d.CreatedAt.Time,
		Lines:          lines,
	}
}

func (d saleDTO) toReturnRequest() domain.DealerReturnRequest {
	return domain.DealerReturnRequest{
		Sale:      d.toSale(),
		Condition: domain.Condition(d.Condition),
		Status:    domain.ReturnStatus(d.Status),
	}
}

func (d paymentDTO) toPayment() domain.Payment {
	return domain.Payment{
		ID:             d.ID,
		CounterpartyID: d.Counterparty,
		Amount:         d.Amount,
		Date:           d.Date,
		Note:           d.Note,
		CreatedAt:      d.CreatedAt.Time,
	}
}
