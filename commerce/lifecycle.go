/*
lifecycle.go - Order Lifecycle Machine

PURPOSE:
  Governs status transitions on a stored transaction and decides which
  compensating stock movement each transition implies.

STATES:
  Pending → Processing → Shipped → Delivered → Completed
  Cancelled and Refunded are reachable from anywhere.

TRANSITION POLICY:
  Staff may override any status with any other known status, so
  CanTransition only rejects unknown labels. Tightening the graph is a
  one-function change.

STOCK MOVEMENTS:
  An order "holds stock" while its status is not Cancelled/Refunded.

    prior holds   next holds   movement
    -----------   ----------   -----------------------------------
    yes           no           restock every line item (increment)
    no            yes          re-commit every line item (decrement)
    yes           yes          none
    no            no           none (Refunded → Refunded never restocks twice)

SEE ALSO:
  - orders.go: UpdateTransaction applies the movement in one unit of work
  - ledger.go: The increment/decrement operations
*/
package commerce

// Status is the persisted order status label.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
	StatusRefunded   Status = "Refunded"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending, StatusProcessing, StatusShipped, StatusDelivered,
	StatusCompleted, StatusCancelled, StatusRefunded,
}

// Valid reports whether s is a known status label.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// HoldsStock reports whether an order in this status keeps its items out of
// inventory.
func (s Status) HoldsStock() bool {
	return s != StatusCancelled && s != StatusRefunded
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	return from.Valid() && to.Valid()
}

// StockMovement is the compensating ledger action implied by a transition.
type StockMovement int

const (
	MovementNone StockMovement = iota
	MovementRestock
	MovementRecommit
)

func (m StockMovement) String() string {
	switch m {
	case MovementRestock:
		return "restock"
	case MovementRecommit:
		return "recommit"
	}
	return "none"
}

// MovementFor returns the stock movement for a (prior, next) status pair.
func MovementFor(from, to Status) StockMovement {
	switch {
	case from.HoldsStock() && !to.HoldsStock():
		return MovementRestock
	case !from.HoldsStock() && to.HoldsStock():
		return MovementRecommit
	}
	return MovementNone
}
