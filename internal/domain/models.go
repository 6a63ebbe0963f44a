package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDealer Role = "dealer"
	RoleShop   Role = "shop"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDealer, RoleShop:
		return true
	default:
		return false
	}
}

// Actor is the signed-in account a workspace belongs to. Token is the raw
// bearer credential issued by the auth collaborator and is never logged.
type Actor struct {
	ID       int64
	Username string
	Role     Role
	Token    string
}

// Key identifies the actor's workspace.
func (a Actor) Key() string {
	return fmt.Sprintf("%s:%d", a.Role, a.ID)
}

type Product struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type Warehouse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ResponsibleID int64  `json:"responsible_id"`
}

type StockRecord struct {
	ID          int64 `json:"id"`
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
	Quantity    int   `json:"quantity"`
}

type Account struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Role      Role   `json:"role"`
	CreatedBy int64  `json:"created_by,omitempty"`
}

func (a Account) DisplayName() string {
	if name := strings.TrimSpace(a.FullName); name != "" {
		return name
	}
	return a.Username
}

type CartLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Defective bool            `json:"defective"`
}

func (l CartLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type CartState string

const (
	CartEmpty    CartState = "empty"
	CartNonEmpty CartState = "non_empty"
)

type CartView struct {
	State    CartState       `json:"state"`
	Lines    []CartViewLine  `json:"lines"`
	TotalSum decimal.Decimal `json:"total_sum"`
}

type CartViewLine struct {
	CartLine
	ProductName string          `json:"product_name"`
	Amount      decimal.Decimal `json:"amount"`
}

type SaleLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Defective   bool            `json:"defective,omitempty"`
}

func (l SaleLine) Amount() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Sale struct {
	ID             int64           `json:"id"`
	CounterpartyID int64           `json:"counterparty_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	Date           string          `json:"date"`
	TotalSum       decimal.Decimal `json:"total_sum"`
	CreatedAt      time.Time       `json:"created_at"`
	Lines          []SaleLine      `json:"lines"`
}

type Condition string

const (
	ConditionHealthy   Condition = "healthy"
	ConditionUnhealthy Condition = "unhealthy"
)

type ReturnStatus string

const (
	ReturnPending  ReturnStatus = "pending"
	ReturnApproved ReturnStatus = "approved"
	ReturnRejected ReturnStatus = "rejected"
)

type DealerReturnRequest struct {
	Sale
	Condition Condition    `json:"condition"`
	Status    ReturnStatus `json:"status"`
}

type Payment struct {
	ID             int64           `json:"id"`
	CounterpartyID int64           `json:"counterparty_id"`
	Amount         decimal.Decimal `json:"amount"`
	Date           string          `json:"date"`
	Note           string          `json:"note,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Balance struct {
	CounterpartyID int64           `json:"counterparty_id"`
	Name           string          `json:"name"`
	SalesTotal     decimal.Decimal `json:"sales_total"`
	ReturnsTotal   decimal.Decimal `json:"returns_total"`
	PaymentsTotal  decimal.Decimal `json:"payments_total"`
	Outstanding    decimal.Decimal `json:"outstanding"`
}

type ReceiptKind string

const (
	ReceiptSale   ReceiptKind = "sale"
	ReceiptReturn ReceiptKind = "return"
)

func (k ReceiptKind) Valid() bool {
	return k == ReceiptSale || k == ReceiptReturn
}

// Receipt is the fully resolved view-model handed to exporters. Every name is
// already looked up; exporters never fetch anything.
type Receipt struct {
	Kind             ReceiptKind     `json:"kind"`
	SaleID           int64           `json:"sale_id"`
	Date             string          `json:"date"`
	CreatedAt        time.Time       `json:"created_at"`
	CounterpartyID   int64           `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name"`
	WarehouseID      int64           `json:"warehouse_id"`
	WarehouseName    string          `json:"warehouse_name"`
	IssuedBy         string          `json:"issued_by"`
	IssuedByID       int64           `json:"issued_by_id"`
	Lines            []SaleLine      `json:"lines"`
	TotalSum         decimal.Decimal `json:"total_sum"`
	Condition        Condition       `json:"condition,omitempty"`
	Status           ReturnStatus    `json:"status,omitempty"`
}

// Code is the value encoded into the receipt's scannable code.
func (r Receipt) Code() string {
	return fmt.Sprintf("%s-%d", r.Kind, r.SaleID)
}

// Visible reports whether actor may read the receipt: admins see all, others
// only what they issued or what was addressed to them.
func (r Receipt) Visible(actor Actor) bool {
	return actor.Role == RoleAdmin || r.IssuedByID == actor.ID || r.CounterpartyID == actor.ID
}

type AuditLog struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	ActorID    int64     `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	ActorRole  Role      `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	UserID      int64  `json:"user_id"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

type SnapshotResponse struct {
	Products   []Product   `json:"products"`
	Accounts   []Account   `json:"counterparties"`
	Warehouses []Warehouse `json:"warehouses"`
	LoadedAt   time.Time   `json:"loaded_at"`
}

type AddLineRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Defective bool             `json:"defective"`
}

type RepriceRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Price     decimal.Decimal `json:"price"`
}

type SubmitRequest struct {
	WarehouseID    int64 `json:"warehouse_id"`
	CounterpartyID int64 `json:"counterparty_id"`
}

type SubmitResponse struct {
	Receipt       Receipt `json:"receipt"`
	SnapshotError string  `json:"snapshot_error,omitempty"`
	ReceiptError  string  `json:"receipt_error,omitempty"`
}

type ReviewRequest struct {
	ManagerPIN string `json:"manager_pin" validate:"required"`
	Note       string `json:"note"`
}

type PaymentCreateRequest struct {
	CounterpartyID int64           `json:"counterparty_id" validate:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount"`
	Date           string          `json:"date"`
	Note           string          `json:"note"`
}

type SalesReportDay struct {
	Date     string          `json:"date"`
	Sales    int             `json:"sales"`
	Items    int             `json:"items"`
	TotalSum decimal.Decimal `json:"total_sum"`
}

type SalesReportCounterparty struct {
	CounterpartyID int64           `json:"counterparty_id"`
	Name           string          `json:"name"`
	Sales          int             `json:"sales"`
	TotalSum       decimal.Decimal `json:"total_sum"`
}

type SalesReport struct {
	From           string                    `json:"from"`
	To             string                    `json:"to"`
	Sales          int                       `json:"sales"`
	Items          int                       `json:"items"`
	TotalSum       decimal.Decimal           `json:"total_sum"`
	ByDay          []SalesReportDay          `json:"by_day"`
	ByCounterparty []SalesReportCounterparty `json:"by_counterparty"`
}

// DateLayout is the calendar date format the backend uses for sale dates.
const DateLayout = "2006-01-02"
