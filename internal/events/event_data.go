package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// AllocationChangedData contains data for AllocationChanged events
type AllocationChangedData struct {
	PrimaryBps uint64 `json:"primary_bps"`
	YieldBps   uint64 `json:"yield_bps"`
	BufferBps  uint64 `json:"buffer_bps"`
}

// EventType returns the event type for AllocationChangedData
func (d *AllocationChangedData) EventType() EventType {
	return AllocationChanged
}

// EntryChangedData contains data for EntryAdded, EntryUpdated and EntryRemoved events
type EntryChangedData struct {
	Type    EventType `json:"-"`
	Tier    string    `json:"tier"`
	Adapter string    `json:"adapter"`
	Weight  uint64    `json:"weight"`
	Active  bool      `json:"active"`
}

// EventType returns the event type for EntryChangedData
func (d *EntryChangedData) EventType() EventType {
	return d.Type
}

// RiskParametersChangedData contains data for RiskParametersChanged events
type RiskParametersChangedData struct {
	IntervalSeconds int64  `json:"interval_seconds"`
	ThresholdBps    uint64 `json:"threshold_bps"`
}

// EventType returns the event type for RiskParametersChangedData
func (d *RiskParametersChangedData) EventType() EventType {
	return RiskParametersChanged
}

// RebalanceCompletedData contains data for RebalanceCompleted events
type RebalanceCompletedData struct {
	ReportID        string `json:"report_id"`
	TotalValue      string `json:"total_value"`
	MaxDeviationBps uint64 `json:"max_deviation_bps"`
	Moves           int    `json:"moves"`
	Failures        int    `json:"failures"`
	Partial         bool   `json:"partial"`
}

// EventType returns the event type for RebalanceCompletedData
func (d *RebalanceCompletedData) EventType() EventType {
	return RebalanceCompleted
}

// FeeRatesChangedData contains data for FeeRatesChanged events
type FeeRatesChangedData struct {
	ManagementBps  uint64 `json:"management_bps"`
	PerformanceBps uint64 `json:"performance_bps"`
}

// EventType returns the event type for FeeRatesChangedData
func (d *FeeRatesChangedData) EventType() EventType {
	return FeeRatesChanged
}

// FeesCollectedData contains data for FeesCollected events
type FeesCollectedData struct {
	Consumer       string `json:"consumer"`
	ManagementFee  string `json:"management_fee"`
	PerformanceFee string `json:"performance_fee"`
	SharesMinted   string `json:"shares_minted"`
	Recipient      string `json:"recipient"`
}

// EventType returns the event type for FeesCollectedData
func (d *FeesCollectedData) EventType() EventType {
	return FeesCollected
}

// VaultFlowData contains data for DepositProcessed and WithdrawalProcessed events
type VaultFlowData struct {
	Type   EventType `json:"-"`
	Owner  string    `json:"owner"`
	Assets string    `json:"assets"`
	Shares string    `json:"shares"`
}

// EventType returns the event type for VaultFlowData
func (d *VaultFlowData) EventType() EventType {
	return d.Type
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
