// Package bank provides the fixed demo account record consulted by the
// tool-execution layer. Nothing here talks to a real banking back end.
package bank

// TransactionKind distinguishes debits from credits.
type TransactionKind string

const (
	Debit  TransactionKind = "debit"
	Credit TransactionKind = "credit"
)

// Transaction is one ledger line of the demo account.
type Transaction struct {
	ID       string
	Date     string
	Merchant string
	Amount   float64
	Kind     TransactionKind
	Category string
}

// Account is the demo account header. Number is already display-masked;
// the full number never exists in this process.
type Account struct {
	Owner    string
	Number   string
	Balance  float64
	Currency string
	Status   string
}

// Snapshot bundles the account with its ordered transaction list.
type Snapshot struct {
	Account      Account
	Transactions []Transaction
}

// DemoSnapshot returns the fixed record served after identity verification.
// Callers receive a fresh copy each time.
func DemoSnapshot() Snapshot {
	return Snapshot{
		Account: Account{
			Owner:    "Alex Morgan",
			Number:   "•••• 4521",
			Balance:  12453.87,
			Currency: "USD",
			Status:   "active",
		},
		Transactions: []Transaction{
			{ID: "txn_1089", Date: "2026-08-24", Merchant: "Blue Bottle Coffee", Amount: 6.75, Kind: Debit, Category: "dining"},
			{ID: "txn_1088", Date: "2026-08-23", Merchant: "Harborline Transfer", Amount: 1500.00, Kind: Credit, Category: "transfer"},
			{ID: "txn_1087", Date: "2026-08-22", Merchant: "Whole Foods Market", Amount: 92.31, Kind: Debit, Category: "groceries"},
			{ID: "txn_1086", Date: "2026-08-20", Merchant: "City Power & Light", Amount: 148.20, Kind: Debit, Category: "utilities"},
			{ID: "txn_1085", Date: "2026-08-18", Merchant: "Acme Payroll", Amount: 3250.00, Kind: Credit, Category: "income"},
			{ID: "txn_1084", Date: "2026-08-17", Merchant: "Metro Transit", Amount: 42.50, Kind: Debit, Category: "transport"},
		},
	}
}
