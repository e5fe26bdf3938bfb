package shared

import "fmt"

// LoyaltySweepLockKey builds the redis key guarding one tenant's expiration sweep.
func LoyaltySweepLockKey(companyID int64) string {
	return fmt.Sprintf("loyalty:company:%d:expire:lock", companyID)
}

// StockVerifyLockKey builds the redis key guarding one tenant's stock verification.
func StockVerifyLockKey(companyID int64) string {
	return fmt.Sprintf("inventory:company:%d:verify:lock", companyID)
}
