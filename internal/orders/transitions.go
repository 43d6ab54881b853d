package orders

import (
	"fmt"

	pkgerrors "github.com/scraplink/scraplink-backend/pkg/errors"
	"github.com/scraplink/scraplink-backend/pkg/enums"
)

// transitionTable is the single source of truth for legal order lifecycle
// moves. Anything not listed here is rejected.
var transitionTable = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusPreparing,
		enums.OrderStatusProcessing,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPreparing: {
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusShipped,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusCancelled: {},
	enums.OrderStatusRefunded:  {},
}

// CanTransition reports whether the move from current to target is legal.
func CanTransition(current, target enums.OrderStatus) bool {
	for _, allowed := range transitionTable[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns a typed error naming both states when the move
// is not in the table.
func ValidateTransition(current, target enums.OrderStatus) error {
	if CanTransition(current, target) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition,
		fmt.Sprintf("cannot move order from %s to %s", current, target)).
		WithDetails(map[string]any{
			"current":   current.String(),
			"requested": target.String(),
		})
}
