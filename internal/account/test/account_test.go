package account_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eventframe/eventframe/internal/account"
	"github.com/eventframe/eventframe/pkg/eventframe"
)

var (
	ctx       context.Context
	cancel    context.CancelFunc
	pool      *pgxpool.Pool
	container testcontainers.Container
	gw        eventframe.Gateway
)

var _ = BeforeSuite(func() {
	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Minute)
	var err error
	pool, container, err = setupTestDatabase(ctx)
	Expect(err).NotTo(HaveOccurred())
	gw = eventframe.NewActuator(pool)
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		container.Terminate(ctx)
	}
	if cancel != nil {
		cancel()
	}
})

func TestAccountExample(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Account Example Suite")
}

func writeCommand(msg any, streamID string) {
	var md eventframe.MessageData
	var err error
	switch m := msg.(type) {
	case account.Open:
		md, err = eventframe.ToMessageData(eventframe.Msg[account.Open]{Data: m, Metadata: eventframe.NewMetadata()})
	case account.Deposit:
		md, err = eventframe.ToMessageData(eventframe.Msg[account.Deposit]{Data: m, Metadata: eventframe.NewMetadata()})
	case account.Withdraw:
		md, err = eventframe.ToMessageData(eventframe.Msg[account.Withdraw]{Data: m, Metadata: eventframe.NewMetadata()})
	default:
		panic(fmt.Sprintf("unsupported command type %T", msg))
	}
	Expect(err).NotTo(HaveOccurred())
	_, err = gw.Write(ctx, eventframe.NewStreamName(account.CommandCategory, streamID), []eventframe.MessageData{md}, nil)
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Account", func() {
	var (
		commandsConsumer     *eventframe.Consumer[account.Settings]
		transactionsConsumer *eventframe.Consumer[account.Settings]
		consumerCtx          context.Context
		consumerCancel       context.CancelFunc
	)

	truncate := func() {
		_, err := pool.Exec(ctx, "TRUNCATE TABLE messages RESTART IDENTITY")
		Expect(err).NotTo(HaveOccurred())
	}

	// The two Consumers are started directly rather than through a
	// Component: Component.Start exits the process on the first task
	// completion (by design), which a ginkgo suite's own cancellation at
	// AfterEach would immediately trigger.
	startComponent := func() {
		var err error
		commandsConsumer, err = account.BuildCommandsConsumer(eventframe.ConsumerOptions{PollInterval: 5 * time.Millisecond})
		Expect(err).NotTo(HaveOccurred())
		transactionsConsumer, err = account.BuildTransactionsConsumer(eventframe.ConsumerOptions{PollInterval: 5 * time.Millisecond})
		Expect(err).NotTo(HaveOccurred())

		consumerCtx, consumerCancel = context.WithCancel(ctx)
		go commandsConsumer.Start(consumerCtx, gw, account.Settings{})
		go transactionsConsumer.Start(consumerCtx, gw, account.Settings{})
	}

	BeforeEach(func() {
		truncate()
		startComponent()
	})

	AfterEach(func() {
		consumerCancel()
	})

	accountStore := func() *eventframe.EntityStore[account.Account] {
		es, err := account.BuildAccountStore(gw)
		Expect(err).NotTo(HaveOccurred())
		return es
	}

	// Each spec uses its own account id: the EntityStore's entity cache is
	// process-wide and keeps an account's projected state and version across
	// the per-spec TRUNCATE, so reusing an id would start from stale state.
	It("S1: opens an account", func() {
		openedAt := time.Now().UTC().Truncate(time.Second)
		writeCommand(account.Open{AccountID: "S1-A", CustomerID: "C", Time: openedAt}, "S1-A")

		es := accountStore()
		Eventually(func() eventframe.Version {
			_, version, err := es.Fetch(ctx, "S1-A")
			Expect(err).NotTo(HaveOccurred())
			return version
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(eventframe.Version(0)))

		a, version, err := es.Fetch(ctx, "S1-A")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.ID).To(Equal("S1-A"))
		Expect(a.CustomerID).To(Equal("C"))
		Expect(a.OpenedTime).NotTo(BeNil())
		Expect(a.Balance).To(Equal(int64(0)))
		Expect(a.Sequence).To(Equal(int64(eventframe.VersionInitial)))
		Expect(version).To(Equal(eventframe.Version(0)))
	})

	It("S2: a duplicate deposit command is applied exactly once", func() {
		writeCommand(account.Open{AccountID: "S2-A", CustomerID: "C", Time: time.Now().UTC()}, "S2-A")
		es := accountStore()
		Eventually(func() eventframe.Version {
			_, version, err := es.Fetch(ctx, "S2-A")
			Expect(err).NotTo(HaveOccurred())
			return version
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(eventframe.Version(0)))

		deposit := account.Deposit{DepositID: "D", AccountID: "S2-A", Amount: 10, Sequence: 0}
		writeCommand(deposit, "S2-A")
		writeCommand(deposit, "S2-A")

		Eventually(func() int64 {
			a, _, err := es.Fetch(ctx, "S2-A")
			Expect(err).NotTo(HaveOccurred())
			return a.Balance
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(int64(10)))

		Consistently(func() int64 {
			a, _, err := es.Fetch(ctx, "S2-A")
			Expect(err).NotTo(HaveOccurred())
			return a.Balance
		}, 300*time.Millisecond, 20*time.Millisecond).Should(Equal(int64(10)))
	})

	It("S3: withdraws from a sufficiently funded account", func() {
		writeCommand(account.Open{AccountID: "S3-A", CustomerID: "C", Time: time.Now().UTC()}, "S3-A")
		es := accountStore()
		Eventually(func() eventframe.Version {
			_, version, err := es.Fetch(ctx, "S3-A")
			Expect(err).NotTo(HaveOccurred())
			return version
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(eventframe.Version(0)))

		writeCommand(account.Deposit{DepositID: "D", AccountID: "S3-A", Amount: 10, Sequence: 0}, "S3-A")
		Eventually(func() int64 {
			a, _, err := es.Fetch(ctx, "S3-A")
			Expect(err).NotTo(HaveOccurred())
			return a.Balance
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(int64(10)))

		seqBeforeWithdraw, _, err := es.Fetch(ctx, "S3-A")
		Expect(err).NotTo(HaveOccurred())
		writeCommand(account.Withdraw{AccountID: "S3-A", Amount: 7, Sequence: seqBeforeWithdraw.Sequence + 1}, "S3-A")

		Eventually(func() int64 {
			a, _, err := es.Fetch(ctx, "S3-A")
			Expect(err).NotTo(HaveOccurred())
			return a.Balance
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(int64(3)))
	})

	It("S4: rejects a withdrawal exceeding the balance", func() {
		writeCommand(account.Open{AccountID: "S4-A", CustomerID: "C", Time: time.Now().UTC()}, "S4-A")
		es := accountStore()
		Eventually(func() eventframe.Version {
			_, version, err := es.Fetch(ctx, "S4-A")
			Expect(err).NotTo(HaveOccurred())
			return version
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(eventframe.Version(0)))

		writeCommand(account.Deposit{DepositID: "D", AccountID: "S4-A", Amount: 5, Sequence: 0}, "S4-A")
		Eventually(func() int64 {
			a, _, err := es.Fetch(ctx, "S4-A")
			Expect(err).NotTo(HaveOccurred())
			return a.Balance
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(int64(5)))

		before, _, err := es.Fetch(ctx, "S4-A")
		Expect(err).NotTo(HaveOccurred())
		writeCommand(account.Withdraw{AccountID: "S4-A", Amount: 7, Sequence: before.Sequence + 1}, "S4-A")

		Eventually(func() int64 {
			a, _, err := es.Fetch(ctx, "S4-A")
			Expect(err).NotTo(HaveOccurred())
			return a.Sequence
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(before.Sequence + 1))

		a, _, err := es.Fetch(ctx, "S4-A")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Balance).To(Equal(int64(5)), "balance must not change on a rejected withdrawal")
	})

	It("S5: a duplicate withdraw at the same sequence is skipped", func() {
		writeCommand(account.Open{AccountID: "S5-A", CustomerID: "C", Time: time.Now().UTC()}, "S5-A")
		es := accountStore()
		Eventually(func() eventframe.Version {
			_, version, err := es.Fetch(ctx, "S5-A")
			Expect(err).NotTo(HaveOccurred())
			return version
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(eventframe.Version(0)))

		writeCommand(account.Deposit{DepositID: "D", AccountID: "S5-A", Amount: 20, Sequence: 0}, "S5-A")
		Eventually(func() int64 {
			a, _, err := es.Fetch(ctx, "S5-A")
			Expect(err).NotTo(HaveOccurred())
			return a.Balance
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(int64(20)))

		before, _, err := es.Fetch(ctx, "S5-A")
		Expect(err).NotTo(HaveOccurred())
		nextSeq := before.Sequence + 1
		writeCommand(account.Withdraw{AccountID: "S5-A", Amount: 5, Sequence: nextSeq}, "S5-A")
		Eventually(func() int64 {
			a, _, err := es.Fetch(ctx, "S5-A")
			Expect(err).NotTo(HaveOccurred())
			return a.Balance
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(int64(15)))

		// Same sequence again: must be a no-op, not a second withdrawal.
		writeCommand(account.Withdraw{AccountID: "S5-A", Amount: 5, Sequence: nextSeq}, "S5-A")

		Consistently(func() int64 {
			a, _, err := es.Fetch(ctx, "S5-A")
			Expect(err).NotTo(HaveOccurred())
			return a.Balance
		}, 300*time.Millisecond, 20*time.Millisecond).Should(Equal(int64(15)))
	})

	It("S6: position writes are batched at the configured interval", func() {
		// Replace the suite's commandsConsumer with one configured for a
		// small PositionUpdateInterval, so seven dispatched messages
		// produce exactly two flushes (after the 3rd and the 6th).
		consumerCancel()
		var err error
		commandsConsumer, err = account.BuildCommandsConsumer(eventframe.ConsumerOptions{
			PollInterval:           5 * time.Millisecond,
			PositionUpdateInterval: 3,
		})
		Expect(err).NotTo(HaveOccurred())
		consumerCtx, consumerCancel = context.WithCancel(ctx)
		go commandsConsumer.Start(consumerCtx, gw, account.Settings{})

		for i := 0; i < 7; i++ {
			id := fmt.Sprintf("S6-%d", i)
			writeCommand(account.Open{AccountID: id, CustomerID: "C", Time: time.Now().UTC()}, id)
		}

		es := accountStore()
		Eventually(func() eventframe.Version {
			_, version, err := es.Fetch(ctx, "S6-6")
			Expect(err).NotTo(HaveOccurred())
			return version
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(eventframe.Version(0)))

		positionStream := eventframe.PositionStreamName(account.CommandCategory, "")
		Eventually(func() int {
			msgs, err := gw.GetStream(ctx, positionStream, eventframe.ReadOptions{})
			Expect(err).NotTo(HaveOccurred())
			return len(msgs)
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(2), "position_update_interval=3 over 7 messages flushes after the 3rd and 6th")
	})
})

// setupTestDatabase creates a test database using testcontainers.
func setupTestDatabase(ctx context.Context) (*pgxpool.Pool, testcontainers.Container, error) {
	password, err := generateRandomPassword(16)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate password: %w", err)
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17.5-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": password,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, err
	}

	host, err := postgresC.Host(ctx)
	if err != nil {
		return nil, nil, err
	}

	port, err := postgresC.MappedPort(ctx, "5432")
	if err != nil {
		return nil, nil, err
	}

	dsn := fmt.Sprintf("postgres://postgres:%s@%s:%s/postgres?sslmode=disable", password, host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}

	schemaSQL, err := os.ReadFile("../../../migrations/schema.sql")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := pool.Exec(ctx, string(schemaSQL)); err != nil {
		return nil, nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return pool, postgresC, nil
}

func generateRandomPassword(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return strings.TrimRight(base64.URLEncoding.EncodeToString(bytes), "=")[:length], nil
}
