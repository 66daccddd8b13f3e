package storage

// Device-scoped keys shared by all accounts on the device.
const (
	AppLanguageKey       = "app_language"
	DubLanguageKey       = "dub_language"
	TranslateLanguageKey = "translate_language"
)

// EntitlementKey returns the account-scoped key holding the VIP record.
func EntitlementKey(accountID string) string {
	return "vip_" + accountID
}

// BalanceKey returns the account-scoped key holding the TCoin balance.
func BalanceKey(accountID string) string {
	return "tcoin_balance_" + accountID
}

// TransactionsKey returns the account-scoped key holding the transaction log.
func TransactionsKey(accountID string) string {
	return "tcoin_transactions_" + accountID
}

// SessionKey returns the account-scoped key holding the mirrored profile snapshot.
func SessionKey(accountID string) string {
	return "session_" + accountID
}
