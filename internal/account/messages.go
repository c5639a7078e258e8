// Package account is the example domain component: account opening,
// deposits, and withdrawals over eventframe, demonstrating both
// store-level (expected_version) and entity-level (sequence) idempotent
// handler patterns.
package account

import "time"

// Open is a command requesting a new account be opened, written to
// account:command-<id>.
type Open struct {
	AccountID  string    `json:"account_id"`
	CustomerID string    `json:"customer_id"`
	Time       time.Time `json:"time"`
}

func (Open) TypeName() string { return "Open" }

// Opened is the fact that an account was opened, written to account-<id>.
type Opened struct {
	AccountID     string    `json:"account_id"`
	CustomerID    string    `json:"customer_id"`
	Time          time.Time `json:"time"`
	ProcessedTime time.Time `json:"processed_time"`
}

func (Opened) TypeName() string { return "Opened" }

// Deposit is a command requesting funds be added, written to
// account:command-<id>. Sequence lets the commands consumer skip a
// duplicate dispatch purely from Account state, independent of the
// transaction-stream idempotency DepositRecorded also provides.
type Deposit struct {
	DepositID string `json:"deposit_id"`
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
}

func (Deposit) TypeName() string { return "Deposit" }

// DepositRecorded is written once per DepositID to accountTransaction-<id>
// with expected_version=initial: a second attempt at the same DepositID
// fails with WrongExpectedVersion, which the handler swallows.
type DepositRecorded struct {
	DepositID string `json:"deposit_id"`
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

func (DepositRecorded) TypeName() string { return "DepositRecorded" }

// Deposited is the fact of a successfully recorded deposit being applied
// to the account balance, written to account-<id> by the transactions
// consumer.
type Deposited struct {
	DepositID string `json:"deposit_id"`
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
}

func (Deposited) TypeName() string { return "Deposited" }

// Withdraw is a command requesting funds be removed, written to
// account:command-<id>. Sequence is the source of the account's
// duplicate-dispatch check.
type Withdraw struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
}

func (Withdraw) TypeName() string { return "Withdraw" }

// Withdrawn is the fact of a successful withdrawal, written to
// account-<id>.
type Withdrawn struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
}

func (Withdrawn) TypeName() string { return "Withdrawn" }

// WithdrawalRejected is written to account-<id> in place of Withdrawn
// when the account's balance is insufficient; it still advances Sequence
// so a replay of the same command is recognized as already handled.
type WithdrawalRejected struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Reason    string `json:"reason"`
}

func (WithdrawalRejected) TypeName() string { return "WithdrawalRejected" }
