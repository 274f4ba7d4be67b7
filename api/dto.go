/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags and are checked by
  decodeRequest before a handler runs. decimal.Decimal fields validate as
  float64 (registered custom type), so gt/gte tags apply to money.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/resale-engine/cart"
	"github.com/warp/resale-engine/commerce"
	"github.com/warp/resale-engine/reconcile"
	"github.com/warp/resale-engine/store/sqlite"
)

// =============================================================================
// SHARED VALIDATOR
// =============================================================================

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
		d, ok := v.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})

	_ = validate.RegisterValidation("condition", func(fl validator.FieldLevel) bool {
		return commerce.Condition(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return commerce.Status(fl.Field().String()).Valid()
	})
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error        string `json:"error"`
	Details      string `json:"details,omitempty"`
	MaxAvailable *int   `json:"max_available,omitempty"`
}

// =============================================================================
// FURNITURE
// =============================================================================

type FurnitureDTO struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Condition string          `json:"condition"`
	Quantity  int             `json:"quantity"`
	IsForSale bool            `json:"isForSale"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type CreateFurnitureRequest struct {
	Name      string          `json:"name" validate:"required,max=200"`
	Category  string          `json:"category" validate:"max=100"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
	Condition string          `json:"condition" validate:"required,condition"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	IsForSale *bool           `json:"isForSale"`
}

type ReceiveStockRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

type RemoveFurnitureResponse struct {
	ID          int64 `json:"id"`
	Deactivated bool  `json:"deactivated"`
}

func toFurnitureDTO(f commerce.FurnitureItem) FurnitureDTO {
	return FurnitureDTO{
		ID:        int64(f.ID),
		Name:      f.Name,
		Category:  f.Category,
		Price:     f.Price,
		Condition: string(f.Condition),
		Quantity:  f.Quantity,
		IsForSale: f.IsForSale,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// =============================================================================
// CUSTOMERS
// =============================================================================

type CustomerDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateCustomerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
}

func toCustomerDTO(c commerce.Customer) CustomerDTO {
	return CustomerDTO{ID: int64(c.ID), Name: c.Name, Email: c.Email, CreatedAt: c.CreatedAt}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type LineItemDTO struct {
	ID            int64           `json:"id"`
	FurnitureID   int64           `json:"furnitureId"`
	FurnitureName string          `json:"furnitureName,omitempty"`
	Quantity      int             `json:"quantity"`
	PriceEach     decimal.Decimal `json:"priceEach"`
}

type TransactionDTO struct {
	ID              int64           `json:"id"`
	CustomerID      int64           `json:"customerId"`
	CustomerName    string          `json:"customerName,omitempty"`
	CustomerEmail   string          `json:"customerEmail,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaymentMethod   string          `json:"paymentMethod"`
	Status          string          `json:"status"`
	ShippingAddress string          `json:"shippingAddress"`
	Notes           string          `json:"notes"`
	IdempotencyKey  string          `json:"idempotencyKey,omitempty"`
	Source          string          `json:"source"`
	ItemCount       int             `json:"itemCount"`
	Items           []LineItemDTO   `json:"items"`
}

type LineItemRequest struct {
	FurnitureID int64           `json:"furnitureId" validate:"gt=0"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
}

type CreateTransactionRequest struct {
	CustomerID          int64             `json:"customerId" validate:"gt=0"`
	Items               []LineItemRequest `json:"items" validate:"required,min=1,dive"`
	TotalAmount         decimal.Decimal   `json:"totalAmount" validate:"gt=0"`
	PaymentMethod       string            `json:"paymentMethod"`
	ShippingAddress     string            `json:"shippingAddress" validate:"max=500"`
	Notes               string            `json:"notes" validate:"max=2000"`
	SkipInventoryUpdate bool              `json:"skipInventoryUpdate"`
	IdempotencyKey      string            `json:"idempotencyKey" validate:"max=128"`
}

type UpdateTransactionRequest struct {
	Status          string            `json:"status" validate:"required,status"`
	Notes           *string           `json:"notes" validate:"omitempty,max=2000"`
	Items           []LineItemRequest `json:"items" validate:"omitempty,min=1,dive"`
	TotalAmount     *decimal.Decimal  `json:"totalAmount" validate:"omitempty,gt=0"`
	PaymentMethod   *string           `json:"paymentMethod"`
	ShippingAddress *string           `json:"shippingAddress" validate:"omitempty,max=500"`
}

func toLineItemInputs(items []LineItemRequest) []commerce.LineItemInput {
	if items == nil {
		return nil
	}
	out := make([]commerce.LineItemInput, len(items))
	for i, it := range items {
		out[i] = commerce.LineItemInput{
			FurnitureID: commerce.FurnitureID(it.FurnitureID),
			Quantity:    it.Quantity,
			Price:       it.Price,
		}
	}
	return out
}

func toTransactionDTO(tx commerce.Transaction) TransactionDTO {
	items := make([]LineItemDTO, len(tx.Items))
	for i, li := range tx.Items {
		items[i] = LineItemDTO{
			ID:            li.ID,
			FurnitureID:   int64(li.FurnitureID),
			FurnitureName: li.FurnitureName,
			Quantity:      li.Quantity,
			PriceEach:     li.PriceEach,
		}
	}
	return TransactionDTO{
		ID:              int64(tx.ID),
		CustomerID:      int64(tx.CustomerID),
		CustomerName:    tx.CustomerName,
		CustomerEmail:   tx.CustomerEmail,
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       tx.UpdatedAt,
		TotalAmount:     tx.TotalAmount,
		PaymentMethod:   string(tx.PaymentMethod),
		Status:          string(tx.Status),
		ShippingAddress: tx.ShippingAddress,
		Notes:           tx.Notes,
		IdempotencyKey:  tx.IdempotencyKey,
		Source:          string(tx.Source),
		ItemCount:       tx.ItemCount(),
		Items:           items,
	}
}

func toTransactionDTOs(txs []commerce.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		out[i] = toTransactionDTO(tx)
	}
	return out
}

type StatsDTO struct {
	TotalTransactions int             `json:"totalTransactions"`
	ByStatus          map[string]int  `json:"byStatus"`
	Revenue           decimal.Decimal `json:"revenue"`
}

// =============================================================================
// CART
// =============================================================================

type CartEntryDTO struct {
	Item     cart.ItemSnapshot `json:"item"`
	Quantity int               `json:"quantity"`
	Subtotal decimal.Decimal   `json:"subtotal"`
}

type CartDTO struct {
	Identity   string          `json:"identity"`
	Entries    []CartEntryDTO  `json:"entries"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type AddCartItemRequest struct {
	FurnitureID int64 `json:"furnitureId" validate:"gt=0"`
	Quantity    int   `json:"quantity" validate:"gt=0"`
}

// UpdateCartItemRequest sets a quantity; zero or less removes the entry.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type CartLoginRequest struct {
	CustomerID int64 `json:"customerId" validate:"gt=0"`
}

type CheckoutRequest struct {
	ShippingAddress string `json:"shippingAddress" validate:"max=500"`
	PaymentMethod   string `json:"paymentMethod"`
	Notes           string `json:"notes" validate:"max=2000"`
}

type CheckoutResponse struct {
	Key         string          `json:"key"`
	Pending     bool            `json:"pending"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
}

func toCartDTO(identity cart.Identity, c cart.Cart) CartDTO {
	entries := make([]CartEntryDTO, len(c.Entries))
	for i, e := range c.Entries {
		entries[i] = CartEntryDTO{Item: e.Item, Quantity: e.Quantity, Subtotal: e.Subtotal()}
	}
	return CartDTO{
		Identity:   string(identity),
		Entries:    entries,
		TotalItems: c.TotalItems(),
		TotalPrice: c.TotalPrice(),
	}
}

// =============================================================================
// RECONCILIATION
// =============================================================================

type ReconciliationRunDTO struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	Scanned         int        `json:"scanned"`
	Migrated        int        `json:"migrated"`
	AlreadyMigrated int        `json:"alreadyMigrated"`
	Skipped         int        `json:"skipped"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// ReconciliationRunsResponse lists recent runs. NextRunAt is set while the
// scheduler is running.
type ReconciliationRunsResponse struct {
	Runs      []ReconciliationRunDTO `json:"runs"`
	NextRunAt *time.Time             `json:"nextRunAt,omitempty"`
}

type ProcessReconciliationResponse struct {
	Run    ReconciliationRunDTO `json:"run"`
	Report reconcile.Report     `json:"report"`
}

func toRunDTO(r sqlite.ReconciliationRun) ReconciliationRunDTO {
	return ReconciliationRunDTO{
		ID:              r.ID,
		Status:          r.Status,
		Scanned:         r.Scanned,
		Migrated:        r.Migrated,
		AlreadyMigrated: r.AlreadyMigrated,
		Skipped:         r.Skipped,
		Error:           r.Error,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
}
