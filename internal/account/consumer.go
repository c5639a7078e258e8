package account

import (
	"time"

	"github.com/eventframe/eventframe/pkg/eventframe"
)

// BuildCommandsConsumer tails CommandCategory, dispatching Open, Deposit,
// and Withdraw to their handlers. PositionUpdateInterval defaults to 100
// per eventframe.ConsumerOptions; callers exercising S6 override it.
func BuildCommandsConsumer(opts eventframe.ConsumerOptions) (*eventframe.Consumer[Settings], error) {
	handlers, err := CommandHandlers()
	if err != nil {
		return nil, err
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return eventframe.NewConsumer(CommandCategory, handlers, opts), nil
}

// BuildTransactionsConsumer tails TransactionCategory, applying confirmed
// deposits to account balances.
func BuildTransactionsConsumer(opts eventframe.ConsumerOptions) (*eventframe.Consumer[Settings], error) {
	handlers, err := TransactionHandlers()
	if err != nil {
		return nil, err
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return eventframe.NewConsumer(TransactionCategory, handlers, opts), nil
}
