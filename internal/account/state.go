package account

import (
	"time"

	"github.com/eventframe/eventframe/pkg/eventframe"
)

// Account is the projected state of one account-<id> stream.
type Account struct {
	ID         string
	CustomerID string
	OpenedTime *time.Time
	Balance    int64
	Sequence   int64
}

// NewAccount is the EntityStore default-entity constructor: a
// never-opened account with Sequence at its initial value, mirroring
// eventframe.VersionInitial.
func NewAccount() Account {
	return Account{Sequence: int64(eventframe.VersionInitial)}
}

// Category is the account category streams live under.
const Category = eventframe.StreamName("account")

// CommandCategory is the category commands are written to and the
// commands Consumer tails.
const CommandCategory = eventframe.StreamName("account:command")

// TransactionCategory is the category DepositRecorded facts are written
// to and the transactions Consumer tails.
const TransactionCategory = eventframe.StreamName("accountTransaction")

// BuildAccountStore constructs an EntityStore[Account] over Category with
// the Opened/Deposited/Withdrawn/WithdrawalRejected projections
// registered.
func BuildAccountStore(gw eventframe.Gateway) (*eventframe.EntityStore[Account], error) {
	es, err := eventframe.BuildEntityStore(gw, Category, NewAccount)
	if err != nil {
		return nil, err
	}
	err = eventframe.ExtendProjections(es,
		eventframe.ProjectionFor(func(a *Account, msg eventframe.Msg[Opened]) {
			a.ID = msg.Data.AccountID
			a.CustomerID = msg.Data.CustomerID
			t := msg.Data.Time
			a.OpenedTime = &t
			a.Balance = 0
		}),
		eventframe.ProjectionFor(func(a *Account, msg eventframe.Msg[Deposited]) {
			a.Balance += msg.Data.Amount
			a.Sequence = msg.Data.Sequence
		}),
		eventframe.ProjectionFor(func(a *Account, msg eventframe.Msg[Withdrawn]) {
			a.Balance -= msg.Data.Amount
			a.Sequence = msg.Data.Sequence
		}),
		eventframe.ProjectionFor(func(a *Account, msg eventframe.Msg[WithdrawalRejected]) {
			a.Sequence = msg.Data.Sequence
		}),
	)
	if err != nil {
		return nil, err
	}
	return es, nil
}
