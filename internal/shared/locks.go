package shared

import "fmt"

// ReconciliationLockKey builds the redis key guarding reconciliation actions
// on one bank account.
func ReconciliationLockKey(bankAccountID int64) string {
	return fmt.Sprintf("recon:bank_account:%d:lock", bankAccountID)
}

// BalanceCheckLockKey builds the redis key guarding manual adjustments.
func BalanceCheckLockKey(bankAccountID int64) string {
	return fmt.Sprintf("banking:bank_account:%d:adjust", bankAccountID)
}
