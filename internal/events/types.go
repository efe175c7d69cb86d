// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	AllocationChanged     EventType = "ALLOCATION_CHANGED"
	EntryAdded            EventType = "ENTRY_ADDED"
	EntryUpdated          EventType = "ENTRY_UPDATED"
	EntryRemoved          EventType = "ENTRY_REMOVED"
	RiskParametersChanged EventType = "RISK_PARAMETERS_CHANGED"
	RebalanceCompleted    EventType = "REBALANCE_COMPLETED"
	FeeRatesChanged       EventType = "FEE_RATES_CHANGED"
	FeesCollected         EventType = "FEES_COLLECTED"
	DepositProcessed      EventType = "DEPOSIT_PROCESSED"
	WithdrawalProcessed   EventType = "WITHDRAWAL_PROCESSED"
	BackupCompleted       EventType = "BACKUP_COMPLETED"
	ErrorOccurred         EventType = "ERROR_OCCURRED"
)

// Event represents a system event with typed data
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}
