package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry directions.
const (
	LedgerDirectionCredit = "CREDIT"
	LedgerDirectionDebit  = "DEBIT"
)

// Ledger reason codes.
const (
	LedgerReasonConsultation = "CONSULTATION"
	LedgerReasonRecharge     = "RECHARGE"
	LedgerReasonRefund       = "REFUND"
	LedgerReasonWithdrawal   = "WITHDRAWAL"
)

// LedgerEntry records one balance mutation together with the resulting
// balance. Entries are append-only; nothing updates or deletes them.
type LedgerEntry struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	Direction         string     `json:"direction"`
	AmountCents       int64      `json:"amount_cents"`
	Reason            string     `json:"reason"`
	ReferenceID       *uuid.UUID `json:"reference_id,omitempty"`
	BalanceAfterCents int64      `json:"balance_after_cents"`
	CreatedAt         time.Time  `json:"created_at"`
}
