package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PurchaseKey builds the deduplication key for a coin purchase receipt.
func PurchaseKey(accountID, receiptID string) string {
	return GenerateKey("purchase", accountID, receiptID)
}

// GenerateKey builds a deterministic key using all provided parts.
func GenerateKey(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}
