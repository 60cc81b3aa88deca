package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Dune: Only 1 copies available",
		(&InsufficientStockError{BookID: "b1", Title: "Dune", Requested: 5, Available: 1}).Error())

	assert.Contains(t, (&NotFoundError{BookID: "b2"}).Error(), "b2")

	assert.Contains(t, (&ValidationError{Reason: "order has no items"}).Error(), "order has no items")

	msg := (&InvalidTransitionError{From: StatusShipped, To: StatusCancelled}).Error()
	assert.Contains(t, msg, "shipped")
	assert.Contains(t, msg, "cancelled")
}
