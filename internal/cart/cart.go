package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"salesdesk/internal/catalog"
	"salesdesk/internal/domain"
)

// Cart holds at most one line per product, in insertion order. It is not safe
// for concurrent use; the owning workspace serializes access.
type Cart struct {
	lines     []domain.CartLine
	overrides map[int64]decimal.Decimal
}

func New() *Cart {
	return &Cart{overrides: make(map[int64]decimal.Decimal)}
}

func (c *Cart) State() domain.CartState {
	if len(c.lines) == 0 {
		return domain.CartEmpty
	}
	return domain.CartNonEmpty
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// AddOrMergeLine adds quantity of productID, merging into an existing line.
//
// A zero unitPrice means "not given": a price staged with RepriceLine for this
// product is used if present, otherwise the catalog price. On merge the
// quantities are summed and the price and defect flag of this call win. The
// merged quantity must fit in the product's scoped stock. A failed call leaves
// the cart untouched.
func (c *Cart) AddOrMergeLine(snap *catalog.Snapshot, productID int64, quantity int, unitPrice decimal.Decimal, defective bool) error {
	const op = "cart.add"

	if quantity <= 0 {
		return domain.NewValidationError(op, domain.FieldQuantity, "quantity must be greater than zero")
	}
	if unitPrice.IsNegative() {
		return domain.NewValidationError(op, domain.FieldPrice, "price must not be negative")
	}
	product, ok := snap.Product(productID)
	if !ok {
		return domain.NewValidationError(op, domain.FieldProduct, fmt.Sprintf("product #%d is not in the catalog", productID))
	}

	price := unitPrice
	staged, hasStaged := c.overrides[productID]
	usedStaged := false
	if price.IsZero() {
		if hasStaged {
			price = staged
			usedStaged = true
		} else {
			price = product.Price
		}
	}
	if !price.IsPositive() {
		return domain.NewValidationError(op, domain.FieldPrice, fmt.Sprintf("%s has no sale price", product.Name))
	}

	idx := c.index(productID)
	merged := quantity
	if idx >= 0 {
		merged += c.lines[idx].Quantity
	}
	if merged > product.Stock {
		return domain.NewValidationError(op, domain.FieldStock,
			fmt.Sprintf("only %d of %s in stock, requested %d", product.Stock, product.Name, merged))
	}

	if idx >= 0 {
		c.lines[idx].Quantity = merged
		c.lines[idx].UnitPrice = price
		c.lines[idx].Defective = defective
	} else {
		c.lines = append(c.lines, domain.CartLine{
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: price,
			Defective: defective,
		})
	}
	if usedStaged {
		delete(c.overrides, productID)
	}
	return nil
}

// RemoveLine drops the product's line. Absent products are ignored.
func (c *Cart) RemoveLine(productID int64) {
	if idx := c.index(productID); idx >= 0 {
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	}
}

// RepriceLine stages newPrice for the next add of productID. Lines already in
// the cart keep their price.
func (c *Cart) RepriceLine(productID int64, newPrice decimal.Decimal) error {
	if !newPrice.IsPositive() {
		return domain.NewValidationError("cart.reprice", domain.FieldPrice, "price must be greater than zero")
	}
	c.overrides[productID] = newPrice
	return nil
}

// StagedPrice reports the override waiting for productID, if any.
func (c *Cart) StagedPrice(productID int64) (decimal.Decimal, bool) {
	price, ok := c.overrides[productID]
	return price, ok
}

func (c *Cart) Clear() {
	c.lines = nil
	c.overrides = make(map[int64]decimal.Decimal)
}

func (c *Cart) Lines() []domain.CartLine {
	return append([]domain.CartLine(nil), c.lines...)
}

// TotalSum is recomputed from the current lines on every call.
func (c *Cart) TotalSum() decimal.Decimal {
	return Total(c.lines)
}

// AllDefective reports whether the cart is non-empty and every line is
// flagged defective.
func (c *Cart) AllDefective() bool {
	if len(c.lines) == 0 {
		return false
	}
	for _, line := range c.lines {
		if !line.Defective {
			return false
		}
	}
	return true
}

func (c *Cart) View(snap *catalog.Snapshot) domain.CartView {
	view := domain.CartView{
		State:    c.State(),
		Lines:    make([]domain.CartViewLine, 0, len(c.lines)),
		TotalSum: c.TotalSum(),
	}
	for _, line := range c.lines {
		view.Lines = append(view.Lines, domain.CartViewLine{
			CartLine:    line,
			ProductName: snap.ProductName(line.ProductID),
			Amount:      line.Amount(),
		})
	}
	return view
}

func Total(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount())
	}
	return total
}

func (c *Cart) index(productID int64) int {
	for i, line := range c.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}
