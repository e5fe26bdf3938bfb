package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/docledger/internal/documents"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMaintenance holds the nightly sweeps so they never starve notifications.
	QueueMaintenance = "maintenance"

	// TaskDocumentNotify delivers the e-mail for a document status change.
	TaskDocumentNotify = "documents:notify"
	// TaskLoyaltyExpire runs the loyalty expiration sweep.
	TaskLoyaltyExpire = "loyalty:expire"
	// TaskStockVerify compares cached stock with the movement ledger.
	TaskStockVerify = "inventory:verify"
	// TaskIdempotencyCleanup purges expired stock movement idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DocumentNotifyPayload identifies the document whose status changed.
type DocumentNotifyPayload struct {
	CompanyID  int64            `json:"company_id"`
	DocumentID int64            `json:"document_id"`
	Status     documents.Status `json:"status"`
}

// NewDocumentNotificationTask constructs an Asynq task.
func NewDocumentNotificationTask(payload DocumentNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentNotify, data, asynq.MaxRetry(5)), nil
}

// LoyaltyExpirePayload scopes a sweep. No company ids means every tenant with
// due points; a zero AsOf means the time the task runs.
type LoyaltyExpirePayload struct {
	CompanyIDs []int64   `json:"company_ids,omitempty"`
	AsOf       time.Time `json:"as_of,omitempty"`
}

// NewLoyaltyExpireTask constructs an Asynq task.
func NewLoyaltyExpireTask(payload LoyaltyExpirePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLoyaltyExpire, data, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3)), nil
}

// StockVerifyPayload scopes a verification run. Repair resets drifted caches
// from the ledger instead of only reporting them.
type StockVerifyPayload struct {
	CompanyIDs []int64 `json:"company_ids,omitempty"`
	Repair     bool    `json:"repair,omitempty"`
}

// NewStockVerifyTask constructs an Asynq task.
func NewStockVerifyTask(payload StockVerifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockVerify, data, asynq.Queue(QueueMaintenance), asynq.MaxRetry(1)), nil
}
