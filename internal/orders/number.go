package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderNumber returns a globally unique, creation-time-sortable
// order number of the form ORD-20260829093054-482910. The random suffix
// disambiguates orders created in the same second; the unique index on
// order_number catches the residual collision.
func GenerateOrderNumber(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	suffix := int64(0)
	if err == nil {
		suffix = n.Int64()
	}
	return fmt.Sprintf("ORD-%s-%06d", now.UTC().Format("20060102150405"), suffix)
}
