package security

import (
	"fmt"

	"github.com/harborline/voicedesk/pkg/core/bank"
)

// Status reports whether a tool executed as requested.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Result is the closed set of structured tool outcomes. Every variant
// serializes itself through Payload; the model never sees Go types.
type Result interface {
	Payload() map[string]any
	isResult()
}

// VerifyResult reports the outcome of a PIN check.
type VerifyResult struct {
	Status Status
}

func (r VerifyResult) Payload() map[string]any {
	out := map[string]any{"status": string(r.Status)}
	if r.Status == StatusSuccess {
		out["message"] = "Identity verified. Full account access granted."
	} else {
		out["message"] = "Verification failed. The PIN does not match our records."
	}
	return out
}

func (VerifyResult) isResult() {}

// AuthRequiredResult is returned when a protected tool is invoked before
// identity has been verified.
type AuthRequiredResult struct{}

func (AuthRequiredResult) Payload() map[string]any {
	return map[string]any{
		"status":  string(StatusFailed),
		"message": "Authentication required. Ask the caller to verify their identity first.",
	}
}

func (AuthRequiredResult) isResult() {}

// AccountSummaryResult carries the demo account snapshot.
type AccountSummaryResult struct {
	Snapshot bank.Snapshot
}

func (r AccountSummaryResult) Payload() map[string]any {
	txns := make([]map[string]any, 0, len(r.Snapshot.Transactions))
	for _, t := range r.Snapshot.Transactions {
		txns = append(txns, map[string]any{
			"id":       t.ID,
			"date":     t.Date,
			"merchant": t.Merchant,
			"amount":   t.Amount,
			"kind":     string(t.Kind),
			"category": t.Category,
		})
	}
	a := r.Snapshot.Account
	return map[string]any{
		"status": string(StatusSuccess),
		"account": map[string]any{
			"owner":    a.Owner,
			"number":   a.Number,
			"balance":  a.Balance,
			"currency": a.Currency,
			"state":    a.Status,
		},
		"transactions": txns,
	}
}

func (AccountSummaryResult) isResult() {}

// TransferResult acknowledges a hand-off to a human department.
type TransferResult struct {
	Department string
	Reference  string
}

func (r TransferResult) Payload() map[string]any {
	return map[string]any{
		"status":     string(StatusSuccess),
		"department": r.Department,
		"reference":  r.Reference,
		"message":    fmt.Sprintf("Transfer to %s queued under reference %s.", r.Department, r.Reference),
	}
}

func (TransferResult) isResult() {}

// FraudLockdownResult acknowledges a fraud report and the resulting lock.
type FraudLockdownResult struct {
	Reference string
}

func (r FraudLockdownResult) Payload() map[string]any {
	return map[string]any{
		"status":    string(StatusSuccess),
		"reference": r.Reference,
		"message":   "Fraud report filed. The account is locked and a specialist will follow up.",
	}
}

func (FraudLockdownResult) isResult() {}

// UnknownToolResult is a benign failure for tool names we do not recognize.
type UnknownToolResult struct {
	Name string
}

func (r UnknownToolResult) Payload() map[string]any {
	return map[string]any{
		"status":  string(StatusFailed),
		"message": fmt.Sprintf("Unknown tool: %s", r.Name),
	}
}

func (UnknownToolResult) isResult() {}
