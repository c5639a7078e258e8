package account

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventframe/eventframe/pkg/eventframe"
)

// Settings carries nothing today; it exists so HandlerParamBuilders and
// Consumer[Settings] have a concrete type to close over. A future
// revision that needs request-scoped dependencies (a clock, a metrics
// sink) grows this struct without touching handler signatures.
type Settings struct{}

func accountStream(id string) eventframe.StreamName {
	return eventframe.NewStreamName(Category, id)
}

// accountStoreParam is a HandlerParamBuilder that hands handlers the same
// projected EntityStore[Account] BuildAccountStore configures, so command
// and transaction handlers read consistent Account state regardless of
// which Consumer is asking.
func accountStoreParam() eventframe.HandlerParamBuilder[Settings, *eventframe.EntityStore[Account]] {
	return func(_ context.Context, gw eventframe.Gateway, _ Settings) (*eventframe.EntityStore[Account], error) {
		return BuildAccountStore(gw)
	}
}

// handleOpen writes Opened to account-<id> guarded by expected_version so
// a re-delivered Open is a no-op: the write fails WrongExpectedVersion and
// is swallowed.
func handleOpen(ctx context.Context, msg eventframe.Msg[Open], gw eventframe.Gateway) error {
	opened := eventframe.FollowMsg(msg.Metadata, Opened{
		AccountID:     msg.Data.AccountID,
		CustomerID:    msg.Data.CustomerID,
		Time:          msg.Data.Time,
		ProcessedTime: time.Now().UTC(),
	})
	data, err := eventframe.ToMessageData(opened)
	if err != nil {
		return err
	}
	initial := eventframe.VersionInitial
	_, err = gw.Write(ctx, accountStream(msg.Data.AccountID), []eventframe.MessageData{data}, &initial)
	if eventframe.IsKind(err, eventframe.KindWrongExpectedVersion) {
		log.Ctx(ctx).Debug().Str("account_id", msg.Data.AccountID).Msg("account already open, ignoring duplicate Open")
		return nil
	}
	return err
}

// handleDeposit first checks the Account's own Sequence to skip a
// re-delivered command outright, then records the deposit to its
// transaction stream guarded by expected_version=initial: a second
// attempt at the same DepositID fails WrongExpectedVersion and is
// swallowed, which is what actually prevents the transactions consumer
// from ever seeing the duplicate.
func handleDeposit(ctx context.Context, msg eventframe.Msg[Deposit], gw eventframe.Gateway, es *eventframe.EntityStore[Account]) error {
	account, _, err := es.Fetch(ctx, msg.Data.AccountID)
	if err != nil {
		return err
	}
	if account.Sequence >= msg.Data.Sequence {
		log.Ctx(ctx).Debug().Str("account_id", msg.Data.AccountID).Int64("sequence", msg.Data.Sequence).Msg("deposit already applied, skipping")
		return nil
	}

	recorded := eventframe.FollowMsg(msg.Metadata, DepositRecorded{
		DepositID: msg.Data.DepositID,
		AccountID: msg.Data.AccountID,
		Amount:    msg.Data.Amount,
	})
	data, err := eventframe.ToMessageData(recorded)
	if err != nil {
		return err
	}
	initial := eventframe.VersionInitial
	txStream := eventframe.NewStreamName(TransactionCategory, msg.Data.DepositID)
	_, err = gw.Write(ctx, txStream, []eventframe.MessageData{data}, &initial)
	if eventframe.IsKind(err, eventframe.KindWrongExpectedVersion) {
		log.Ctx(ctx).Debug().Str("deposit_id", msg.Data.DepositID).Msg("deposit already recorded, ignoring duplicate command")
		return nil
	}
	return err
}

// handleWithdraw decides Withdrawn vs WithdrawalRejected from the
// projected balance, and always advances Sequence so a re-delivered
// Withdraw is recognized as already handled by handleDeposit's sibling
// check next time Account is fetched.
func handleWithdraw(ctx context.Context, msg eventframe.Msg[Withdraw], gw eventframe.Gateway, es *eventframe.EntityStore[Account]) error {
	account, _, err := es.Fetch(ctx, msg.Data.AccountID)
	if err != nil {
		return err
	}
	if account.Sequence >= msg.Data.Sequence {
		log.Ctx(ctx).Debug().Str("account_id", msg.Data.AccountID).Int64("sequence", msg.Data.Sequence).Msg("withdraw already applied, skipping")
		return nil
	}

	var out eventframe.MessageData
	if account.Balance >= msg.Data.Amount {
		out, err = eventframe.ToMessageData(eventframe.FollowMsg(msg.Metadata, Withdrawn{
			AccountID: msg.Data.AccountID,
			Amount:    msg.Data.Amount,
			Sequence:  msg.Data.Sequence,
		}))
	} else {
		out, err = eventframe.ToMessageData(eventframe.FollowMsg(msg.Metadata, WithdrawalRejected{
			AccountID: msg.Data.AccountID,
			Amount:    msg.Data.Amount,
			Sequence:  msg.Data.Sequence,
			Reason:    "insufficient funds",
		}))
	}
	if err != nil {
		return err
	}
	_, err = gw.Write(ctx, accountStream(msg.Data.AccountID), []eventframe.MessageData{out}, nil)
	return err
}

// handleDepositRecorded applies one confirmed deposit to the account
// balance. Because handleDeposit guarantees at most one DepositRecorded
// per DepositID ever lands in the transaction stream, this handler need
// not re-check idempotency itself.
func handleDepositRecorded(ctx context.Context, msg eventframe.Msg[DepositRecorded], gw eventframe.Gateway, es *eventframe.EntityStore[Account]) error {
	account, _, err := es.Fetch(ctx, msg.Data.AccountID)
	if err != nil {
		return err
	}
	deposited := eventframe.FollowMsg(msg.Metadata, Deposited{
		DepositID: msg.Data.DepositID,
		AccountID: msg.Data.AccountID,
		Amount:    msg.Data.Amount,
		Sequence:  account.Sequence + 1,
	})
	data, err := eventframe.ToMessageData(deposited)
	if err != nil {
		return err
	}
	_, err = gw.Write(ctx, accountStream(msg.Data.AccountID), []eventframe.MessageData{data}, nil)
	return err
}

// CommandHandlers builds the HandlerCollection for the Consumer tailing
// CommandCategory: Open and Deposit and Withdraw commands.
func CommandHandlers() (*eventframe.HandlerCollection[Settings], error) {
	return eventframe.NewHandlerCollection(
		eventframe.HandlerFunc1(handleOpen, eventframe.WriteParam[Settings]()),
		eventframe.HandlerFunc2(handleDeposit, eventframe.WriteParam[Settings](), accountStoreParam()),
		eventframe.HandlerFunc2(handleWithdraw, eventframe.WriteParam[Settings](), accountStoreParam()),
	)
}

// TransactionHandlers builds the HandlerCollection for the Consumer
// tailing TransactionCategory: applying confirmed deposits to balances.
func TransactionHandlers() (*eventframe.HandlerCollection[Settings], error) {
	return eventframe.NewHandlerCollection(
		eventframe.HandlerFunc2(handleDepositRecorded, eventframe.WriteParam[Settings](), accountStoreParam()),
	)
}
