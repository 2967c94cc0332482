package core

import "time"

// TxState is a transaction's position in its lifecycle state machine.
type TxState string

const (
	StateIdle                   TxState = "Idle"
	StateWaitingForBill         TxState = "WaitingForBill"
	StateAuthenticating         TxState = "Authenticating"
	StateSorting                TxState = "Sorting"
	StateWaitingForConfirmation TxState = "WaitingForConfirmation"
	StateDispensing             TxState = "Dispensing"
	StateComplete               TxState = "Complete"
	StateCancelled              TxState = "Cancelled"
	StateError                  TxState = "Error"
)

// TxType identifies the direction of a money-changing transaction.
type TxType string

const (
	BillToBill TxType = "bill-to-bill"
	BillToCoin TxType = "bill-to-coin"
	CoinToBill TxType = "coin-to-bill"
)

// DispenseResult is the persisted outcome of a dispense attempt, mirroring
// the broadcast DispenseComplete payload.
type DispenseResult struct {
	Success         bool               `json:"success"`
	TotalDispensed  int                `json:"total_dispensed"`
	Shortfall       int                `json:"shortfall"`
	DispensedBills  map[BillDenom]int  `json:"dispensed_bills"`
	DispensedCoins  map[CoinDenom]int  `json:"dispensed_coins"`
	ClaimTicketCode string             `json:"claim_ticket_code,omitempty"`
}

// Transaction is the persisted record of one money-changing transaction.
type Transaction struct {
	ID                     string            `json:"id"`
	Type                   TxType            `json:"type"`
	State                  TxState           `json:"state"`
	TargetAmount           int               `json:"target_amount"`
	Fee                    int               `json:"fee"`
	TotalDue               int               `json:"total_due"`
	InsertedAmount         int               `json:"inserted_amount"`
	DispensedAmount        int               `json:"dispensed_amount"`
	InsertedDenominations  map[string]int    `json:"inserted_denominations"`
	SelectedDispenseDenoms []int             `json:"selected_dispense_denoms"`
	DispensePlan           *DispensePlan     `json:"dispense_plan,omitempty"`
	DispenseResult         *DispenseResult   `json:"dispense_result,omitempty"`
	ErrorCode              string            `json:"error_code,omitempty"`
	ErrorMessage           string            `json:"error_message,omitempty"`
	LastRejection          string            `json:"last_rejection,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
	CompletedAt            *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a deep copy suitable for handing to callers outside the
// orchestrator's lock.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.InsertedDenominations = make(map[string]int, len(t.InsertedDenominations))
	for k, v := range t.InsertedDenominations {
		c.InsertedDenominations[k] = v
	}
	c.SelectedDispenseDenoms = append([]int(nil), t.SelectedDispenseDenoms...)
	if t.DispensePlan != nil {
		p := *t.DispensePlan
		p.Items = append([]DispensePlanItem(nil), t.DispensePlan.Items...)
		c.DispensePlan = &p
	}
	if t.DispenseResult != nil {
		r := *t.DispenseResult
		r.DispensedBills = make(map[BillDenom]int, len(t.DispenseResult.DispensedBills))
		for k, v := range t.DispenseResult.DispensedBills {
			r.DispensedBills[k] = v
		}
		r.DispensedCoins = make(map[CoinDenom]int, len(t.DispenseResult.DispensedCoins))
		for k, v := range t.DispenseResult.DispensedCoins {
			r.DispensedCoins[k] = v
		}
		c.DispenseResult = &r
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// WALStatus is the lifecycle of a write-ahead log entry.
type WALStatus string

const (
	WALPending    WALStatus = "Pending"
	WALCompleted  WALStatus = "Completed"
	WALRolledBack WALStatus = "RolledBack"
)

// WALEntry is one append-only write-ahead log record. Every state
// transition appends exactly one entry, marked Completed only after the
// owning transaction's state has been durably updated.
type WALEntry struct {
	ID            int64     `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Action        string    `json:"action"`
	Data          []byte    `json:"data,omitempty"`
	Status        WALStatus `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// WAL action labels for orchestrator-level operations. State-machine
// transitions log "STATE_<FROM>_TO_<TO>" instead (see state_machine.go).
const (
	ActionReserveInventory  = "RESERVE_INVENTORY"
	ActionDispenseStart     = "DISPENSE_START"
	ActionDispenseComplete  = "DISPENSE_COMPLETE"
	ActionBillAccepted      = "BILL_ACCEPTED"
	ActionTransactionCreate = "TRANSACTION_CREATED"
)
