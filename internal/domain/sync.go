package domain

import "time"

// Sync job status constants.
const (
	SyncStatusPending = "PENDING"
	SyncStatusRunning = "RUNNING"
	SyncStatusSuccess = "SUCCESS"
	SyncStatusFailed  = "FAILED"
)

// SyncType identifies which fact pipeline(s) a job replicates.
type SyncType string

// Allowed sync types.
const (
	SyncTypeFactOrder    SyncType = "fact_order"
	SyncTypeFactDelivery SyncType = "fact_delivery"
	SyncTypeBoth         SyncType = "both"
)

// ParseSyncType validates a raw sync type string.
func ParseSyncType(s string) (SyncType, error) {
	switch SyncType(s) {
	case SyncTypeFactOrder, SyncTypeFactDelivery, SyncTypeBoth:
		return SyncType(s), nil
	default:
		return "", ErrValidation("invalid sync_type %q: must be one of fact_order, fact_delivery, both", s)
	}
}

// FactTypes expands a sync type into the concrete fact pipelines it covers.
// "both" fans out into the order and delivery pipelines.
func (t SyncType) FactTypes() []FactType {
	switch t {
	case SyncTypeFactOrder:
		return []FactType{FactOrder}
	case SyncTypeFactDelivery:
		return []FactType{FactDelivery}
	case SyncTypeBoth:
		return []FactType{FactOrder, FactDelivery}
	default:
		return nil
	}
}

// DateWindow holds optional inclusive date bounds for extraction.
// A nil bound means unbounded on that side.
type DateWindow struct {
	From *time.Time
	To   *time.Time
}

// SyncCounts aggregates row outcomes for a job or a single pipeline run.
type SyncCounts struct {
	Total   int64 `json:"total_rows"`
	Success int64 `json:"success_rows"`
	Failed  int64 `json:"failed_rows"`
}

// Add returns the element-wise sum of two count sets.
func (c SyncCounts) Add(o SyncCounts) SyncCounts {
	return SyncCounts{
		Total:   c.Total + o.Total,
		Success: c.Success + o.Success,
		Failed:  c.Failed + o.Failed,
	}
}

// SyncJob is the in-memory state of one accepted sync run. It lives only for
// the lifetime of the process; history beyond it is the persisted sync log.
type SyncJob struct {
	JobID      string     `json:"job_id"`
	SyncType   SyncType   `json:"sync_type"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	Status     string     `json:"status"`
	Counts     SyncCounts `json:"counts"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SyncLogEntry is one persisted row in tms_sync_log. A "both" job writes one
// entry per fact pipeline so history stays filterable by sync_type.
type SyncLogEntry struct {
	ID           int64      `json:"id"`
	JobID        string     `json:"job_id"`
	SyncType     SyncType   `json:"sync_type"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	TotalRows    int64      `json:"total_rows"`
	SuccessRows  int64      `json:"success_rows"`
	FailedRows   int64      `json:"failed_rows"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// SubmitRequest holds parameters for submitting a sync job.
type SubmitRequest struct {
	SyncType SyncType
	DateFrom *time.Time
	DateTo   *time.Time
}

// Validate checks that the request is well-formed.
func (r *SubmitRequest) Validate() error {
	if _, err := ParseSyncType(string(r.SyncType)); err != nil {
		return err
	}
	if r.DateFrom != nil && r.DateTo != nil && r.DateFrom.After(*r.DateTo) {
		return ErrValidation("date_from %s is after date_to %s",
			r.DateFrom.Format("2006-01-02"), r.DateTo.Format("2006-01-02"))
	}
	return nil
}

// Window returns the extraction window carried by the request.
func (r *SubmitRequest) Window() DateWindow {
	return DateWindow{From: r.DateFrom, To: r.DateTo}
}

// HistoryFilter holds query parameters for the sync history listing.
type HistoryFilter struct {
	SyncType *SyncType
	Limit    int
}

// DefaultHistoryLimit caps history listings when no limit is given.
const DefaultHistoryLimit = 20
