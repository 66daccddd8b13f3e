package domain

import "time"

// TransactionType classifies a TCoin ledger entry.
type TransactionType string

const (
	TransactionPurchase     TransactionType = "purchase"
	TransactionTranslation  TransactionType = "translation"
	TransactionPlayback     TransactionType = "playback"
	TransactionSubscription TransactionType = "subscription"
	TransactionRefund       TransactionType = "refund"
	TransactionBonus        TransactionType = "bonus"
)

// Transaction is an immutable TCoin ledger entry. Amount is signed: positive
// for credits, negative for debits. Entries are appended in chronological order.
type Transaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Amount      int64           `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
	Description string          `json:"description"`
	ReferenceID string          `json:"reference_id,omitempty"`
}
