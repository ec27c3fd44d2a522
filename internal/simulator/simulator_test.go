package simulator_test

import (
	"context"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CedrosPay/paysim/internal/callbacks"
	apierrors "github.com/CedrosPay/paysim/internal/errors"
	"github.com/CedrosPay/paysim/internal/metrics"
	"github.com/CedrosPay/paysim/internal/random"
	"github.com/CedrosPay/paysim/internal/simulator"
	"github.com/CedrosPay/paysim/internal/storage"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newSimulator(t *testing.T, cfg simulator.Config, opts ...simulator.Option) *simulator.Simulator {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	sim, err := simulator.New(store, cfg, opts...)
	require.NoError(t, err)
	return sim
}

func payment(id string, amount int64) simulator.PaymentData {
	return simulator.PaymentData{
		ID:          id,
		Amount:      decimal.NewFromInt(amount),
		Currency:    "XOF",
		Description: "Order " + id,
		Customer:    simulator.Customer{Name: "Awa", Email: "awa@example.com", Phone: "+221700000000"},
	}
}

func initiate(t *testing.T, sim *simulator.Simulator, id, webhookURL string) simulator.InitiationResult {
	t.Helper()
	res, err := sim.Initiate(context.Background(), payment(id, 10000), "https://shop.test/ok", "https://shop.test/cancel", webhookURL)
	require.NoError(t, err)
	return res
}

func TestNew_Validation(t *testing.T) {
	_, err := simulator.New(nil, simulator.DefaultConfig())
	require.Error(t, err)

	cfg := simulator.DefaultConfig()
	cfg.DuplicatePolicy = "merge"
	_, err = simulator.New(storage.NewMemoryStore(), cfg)
	require.Error(t, err)
}

func TestInitiate_CreatesPendingTransaction(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultConfig(), simulator.WithClock(func() time.Time { return fixedNow }))

	res := initiate(t, sim, "TXN-1", "")

	assert.Equal(t, "TXN-1", res.Reference)
	assert.Equal(t, "success", res.Status)
	assert.Len(t, res.Token, 32)
	_, err := hex.DecodeString(res.Token)
	assert.NoError(t, err, "token must be hex")
	assert.Equal(t, "http://localhost:8080/checkout/"+res.Token, res.CheckoutURL)

	tx := res.Transaction
	assert.Equal(t, simulator.StatusPending, tx.Status)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "XOF", tx.Currency)
	assert.Equal(t, "https://shop.test/ok", tx.SuccessURL)
	assert.Equal(t, "https://shop.test/cancel", tx.CancelURL)
	assert.Equal(t, fixedNow, tx.CreatedAt)
	assert.Equal(t, fixedNow, tx.UpdatedAt)
	assert.Nil(t, tx.CompletedAt)

	stored, err := sim.GetTransaction(context.Background(), "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, res.Token, stored.Token)
}

func TestInitiate_TokenLengthFloor(t *testing.T) {
	for _, tokenBytes := range []int{0, 8, 15} {
		cfg := simulator.DefaultConfig()
		cfg.TokenBytes = tokenBytes
		sim := newSimulator(t, cfg)

		res := initiate(t, sim, "TXN-1", "")
		assert.Len(t, res.Token, 2*simulator.MinTokenBytes, "token_bytes %d", tokenBytes)
	}

	cfg := simulator.DefaultConfig()
	cfg.TokenBytes = 24
	res := initiate(t, newSimulator(t, cfg), "TXN-2", "")
	assert.Len(t, res.Token, 48)
}

func TestInitiate_CurrencyAndURLs(t *testing.T) {
	cfg := simulator.DefaultConfig()
	cfg.BaseURL = "https://sandbox.test/"
	cfg.CheckoutPath = "/pay/"
	cfg.DefaultCurrency = "usd"
	sim := newSimulator(t, cfg)

	data := payment("TXN-2", 500)
	data.Currency = ""
	res, err := sim.Initiate(context.Background(), data, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "USD", res.Transaction.Currency)
	assert.Equal(t, "https://sandbox.test/pay/"+res.Token, res.CheckoutURL)

	data = payment("TXN-3", 500)
	data.Currency = "eur"
	res, err = sim.Initiate(context.Background(), data, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "EUR", res.Transaction.Currency)
}

func TestInitiate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    simulator.PaymentData
		code    apierrors.ErrorCode
		message string
	}{
		{
			name:    "zero amount",
			data:    payment("TXN-1", 0),
			code:    apierrors.ErrCodeInvalidAmount,
			message: "invalid amount",
		},
		{
			name:    "negative amount",
			data:    payment("TXN-1", -5),
			code:    apierrors.ErrCodeInvalidAmount,
			message: "invalid amount",
		},
		{
			name:    "absent amount",
			data:    simulator.PaymentData{ID: "TXN-1"},
			code:    apierrors.ErrCodeInvalidAmount,
			message: "invalid amount",
		},
		{
			name:    "amount checked before id",
			data:    simulator.PaymentData{},
			code:    apierrors.ErrCodeInvalidAmount,
			message: "invalid amount",
		},
		{
			name:    "missing id",
			data:    payment("", 100),
			code:    apierrors.ErrCodeMissingField,
			message: "missing transaction id",
		},
		{
			name:    "blank id",
			data:    payment("   ", 100),
			code:    apierrors.ErrCodeMissingField,
			message: "missing transaction id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newSimulator(t, simulator.DefaultConfig())

			_, err := sim.Initiate(context.Background(), tt.data, "", "", "")
			require.Error(t, err)
			assert.ErrorIs(t, err, apierrors.ErrValidation)
			assert.Equal(t, tt.code, apierrors.CodeOf(err))
			assert.Equal(t, tt.message, err.Error())

			all, err := sim.ListTransactions(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all, "no transaction may be stored on validation failure")
		})
	}
}

func TestResolve_ApproveAndReject(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t, simulator.DefaultConfig(), simulator.WithClock(func() time.Time { return fixedNow }))

	initiate(t, sim, "A", "")
	initiate(t, sim, "B", "")

	approved, err := sim.Resolve(ctx, "A", simulator.OutcomeApprove)
	require.NoError(t, err)
	assert.Equal(t, simulator.StatusCompleted, approved.Status)
	require.NotNil(t, approved.CompletedAt)
	assert.Equal(t, fixedNow, *approved.CompletedAt)

	rejected, err := sim.Resolve(ctx, "B", simulator.OutcomeReject)
	require.NoError(t, err)
	assert.Equal(t, simulator.StatusFailed, rejected.Status)
	assert.NotNil(t, rejected.CompletedAt)

	for _, ref := range []string{"A", "B"} {
		_, err = sim.Resolve(ctx, ref, simulator.OutcomeApprove)
		assert.ErrorIs(t, err, apierrors.ErrInvalidState, "second resolve of %s", ref)
		_, err = sim.Cancel(ctx, ref)
		assert.ErrorIs(t, err, apierrors.ErrInvalidState, "cancel after resolve of %s", ref)
	}

	// A failed retry leaves the first outcome intact.
	tx, err := sim.GetTransaction(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, simulator.StatusFailed, tx.Status)
}

func TestResolve_InvalidOutcome(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultConfig())
	initiate(t, sim, "A", "")

	_, err := sim.Resolve(context.Background(), "A", simulator.Outcome(99))
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrValidation)
	assert.Equal(t, "invalid outcome", err.Error())

	tx, err := sim.GetTransaction(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, simulator.StatusPending, tx.Status)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t, simulator.DefaultConfig())
	initiate(t, sim, "A", "")

	tx, err := sim.Cancel(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, simulator.StatusCancelled, tx.Status)
	assert.Nil(t, tx.CompletedAt, "cancel never sets completed-at")

	_, err = sim.Cancel(ctx, "A")
	assert.ErrorIs(t, err, apierrors.ErrInvalidState)
	_, err = sim.Resolve(ctx, "A", simulator.OutcomeApprove)
	assert.ErrorIs(t, err, apierrors.ErrInvalidState)

	status, err := sim.GetStatus(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", status.Status)
	assert.Equal(t, "Payment was cancelled", status.Message)
}

func TestUnknownReference(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t, simulator.DefaultConfig())

	_, err := sim.Resolve(ctx, "nope", simulator.OutcomeApprove)
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
	_, err = sim.Cancel(ctx, "nope")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
	_, err = sim.GetStatus(ctx, "nope")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
	_, err = sim.GetTransaction(ctx, "nope")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
	assert.Equal(t, apierrors.ErrCodeTransactionNotFound, apierrors.CodeOf(err))

	_, ok := sim.BuildWebhookPayload(ctx, "nope")
	assert.False(t, ok)
}

func TestResolve_ConfiguredRateExtremes(t *testing.T) {
	const trials = 200
	ctx := context.Background()

	tests := []struct {
		rate float64
		want simulator.Status
	}{
		{0.0, simulator.StatusFailed},
		{1.0, simulator.StatusCompleted},
	}

	for _, tt := range tests {
		cfg := simulator.DefaultConfig()
		cfg.SuccessRate = tt.rate
		// Draws are strictly positive so a rate of 0 can never approve.
		sim := newSimulator(t, cfg, simulator.WithRandom(random.NewScripted(0.999, 0.5, 1e-9, 0.25)))

		for i := 0; i < trials; i++ {
			ref := "T" + decimal.NewFromInt(int64(i)).String()
			initiate(t, sim, ref, "")
			tx, err := sim.Resolve(ctx, ref, simulator.OutcomeUseConfiguredRate)
			require.NoError(t, err)
			require.Equal(t, tt.want, tx.Status, "rate %v trial %d", tt.rate, i)
		}
	}
}

func TestResolve_ConfiguredRateCryptoSource(t *testing.T) {
	ctx := context.Background()
	cfg := simulator.DefaultConfig()
	cfg.SuccessRate = 1.0
	sim := newSimulator(t, cfg)

	for i := 0; i < 100; i++ {
		ref := "C" + decimal.NewFromInt(int64(i)).String()
		initiate(t, sim, ref, "")
		tx, err := sim.Resolve(ctx, ref, simulator.OutcomeUseConfiguredRate)
		require.NoError(t, err)
		require.Equal(t, simulator.StatusCompleted, tx.Status)
	}
}

func TestResolve_RateBoundaryApproves(t *testing.T) {
	ctx := context.Background()
	cfg := simulator.DefaultConfig()
	cfg.SuccessRate = 0.5
	sim := newSimulator(t, cfg, simulator.WithRandom(random.NewScripted(0.5, 0.51)))

	initiate(t, sim, "A", "")
	initiate(t, sim, "B", "")

	a, err := sim.Resolve(ctx, "A", simulator.OutcomeUseConfiguredRate)
	require.NoError(t, err)
	assert.Equal(t, simulator.StatusCompleted, a.Status, "u equal to the rate approves")

	b, err := sim.Resolve(ctx, "B", simulator.OutcomeUseConfiguredRate)
	require.NoError(t, err)
	assert.Equal(t, simulator.StatusFailed, b.Status)
}

func TestResolve_ZeroRateApprovesExactZeroDraw(t *testing.T) {
	cfg := simulator.DefaultConfig()
	cfg.SuccessRate = 0
	// NewScripted with no floats always draws 0.0, which satisfies u <= rate.
	sim := newSimulator(t, cfg, simulator.WithRandom(random.NewScripted()))

	initiate(t, sim, "Z", "")
	tx, err := sim.Resolve(context.Background(), "Z", simulator.OutcomeUseConfiguredRate)
	require.NoError(t, err)
	assert.Equal(t, simulator.StatusCompleted, tx.Status)
}

func TestGetStatus_Mapping(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t, simulator.DefaultConfig())

	initiate(t, sim, "P", "")
	initiate(t, sim, "C", "")
	initiate(t, sim, "F", "")
	initiate(t, sim, "X", "")
	_, err := sim.Resolve(ctx, "C", simulator.OutcomeApprove)
	require.NoError(t, err)
	_, err = sim.Resolve(ctx, "F", simulator.OutcomeReject)
	require.NoError(t, err)
	_, err = sim.Cancel(ctx, "X")
	require.NoError(t, err)

	tests := []struct {
		ref, status, message string
	}{
		{"P", "pending", "Payment is pending"},
		{"C", "completed", "Payment completed successfully"},
		{"F", "failed", "Payment failed"},
		{"X", "cancelled", "Payment was cancelled"},
	}
	for _, tt := range tests {
		res, err := sim.GetStatus(ctx, tt.ref)
		require.NoError(t, err)
		assert.Equal(t, tt.ref, res.Reference)
		assert.Equal(t, tt.status, res.Status)
		assert.Equal(t, tt.message, res.Message)
		assert.Equal(t, "XOF", res.Currency)
		assert.True(t, res.Amount.Equal(decimal.NewFromInt(10000)))
		assert.Equal(t, tt.ref, res.Transaction.Reference)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t, simulator.DefaultConfig())
	initiate(t, sim, "A", "")
	initiate(t, sim, "B", "")

	all, err := sim.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, sim.Clear(ctx))

	all, err = sim.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, err = sim.GetTransaction(ctx, "A")
	assert.ErrorIs(t, err, apierrors.ErrNotFound)
}

func TestExampleScenario(t *testing.T) {
	ctx := context.Background()
	notifier := callbacks.NewRecordingNotifier()
	sim := newSimulator(t, simulator.DefaultConfig(),
		simulator.WithNotifier(notifier),
		simulator.WithClock(func() time.Time { return fixedNow }),
	)

	res, err := sim.Initiate(ctx, simulator.PaymentData{
		ID:       "TXN-1",
		Amount:   decimal.NewFromInt(10000),
		Currency: "XOF",
	}, "https://shop.test/ok", "https://shop.test/cancel", "https://shop.test/hook")
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", res.Reference)
	assert.Equal(t, simulator.StatusPending, res.Transaction.Status)

	status, err := sim.GetStatus(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", status.Status)

	tx, err := sim.Resolve(ctx, "TXN-1", simulator.OutcomeApprove)
	require.NoError(t, err)
	assert.Equal(t, simulator.StatusCompleted, tx.Status)

	status, err = sim.GetStatus(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, "Payment completed successfully", status.Message)

	payload, ok := sim.BuildWebhookPayload(ctx, "TXN-1")
	require.True(t, ok)
	assert.Equal(t, "TXN-1", payload.Reference)
	assert.Equal(t, "completed", payload.Status)
	assert.Equal(t, fixedNow, payload.Timestamp)

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "https://shop.test/hook", events[0].WebhookURL)
	assert.Equal(t, callbacks.EventTransactionCompleted, events[0].EventType)
	assert.Equal(t, payload, events[0].Payload)

	_, err = sim.Resolve(ctx, "TXN-1", simulator.OutcomeReject)
	assert.ErrorIs(t, err, apierrors.ErrInvalidState)
	assert.Len(t, notifier.Events(), 1, "a rejected retry emits nothing")
}

func TestWebhookEmission(t *testing.T) {
	ctx := context.Background()
	notifier := callbacks.NewRecordingNotifier()
	sim := newSimulator(t, simulator.DefaultConfig(), simulator.WithNotifier(notifier))

	initiate(t, sim, "no-hook", "")
	initiate(t, sim, "cancelled", "https://shop.test/hook")
	initiate(t, sim, "rejected", "https://shop.test/hook")

	_, err := sim.Resolve(ctx, "no-hook", simulator.OutcomeApprove)
	require.NoError(t, err)
	_, err = sim.Cancel(ctx, "cancelled")
	require.NoError(t, err)
	_, err = sim.Resolve(ctx, "rejected", simulator.OutcomeReject)
	require.NoError(t, err)

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "rejected", events[0].Payload.Reference)
	assert.Equal(t, "failed", events[0].Payload.Status)
	assert.Equal(t, callbacks.EventTransactionFailed, events[0].EventType)
}

func TestBuildWebhookPayload_Timestamps(t *testing.T) {
	ctx := context.Background()
	now := fixedNow
	sim := newSimulator(t, simulator.DefaultConfig(), simulator.WithClock(func() time.Time { return now }))

	initiate(t, sim, "A", "")

	payload, ok := sim.BuildWebhookPayload(ctx, "A")
	require.True(t, ok)
	assert.Equal(t, "pending", payload.Status)
	assert.Equal(t, "Payment is pending", payload.Message)
	assert.Equal(t, fixedNow, payload.Timestamp, "pending payload uses updated-at")

	now = fixedNow.Add(time.Minute)
	_, err := sim.Cancel(ctx, "A")
	require.NoError(t, err)
	payload, _ = sim.BuildWebhookPayload(ctx, "A")
	assert.Equal(t, fixedNow.Add(time.Minute), payload.Timestamp, "cancelled payload uses updated-at")

	initiate(t, sim, "B", "")
	now = fixedNow.Add(time.Hour)
	_, err = sim.Resolve(ctx, "B", simulator.OutcomeApprove)
	require.NoError(t, err)
	payload, _ = sim.BuildWebhookPayload(ctx, "B")
	assert.Equal(t, fixedNow.Add(time.Hour), payload.Timestamp, "resolved payload uses completed-at")
	assert.Equal(t, "B", payload.Reference)
	assert.True(t, payload.Amount.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "XOF", payload.Currency)
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t, simulator.DefaultConfig())

	data := payment("A", 100)
	data.Metadata = map[string]string{"order": "1"}
	res, err := sim.Initiate(ctx, data, "", "", "")
	require.NoError(t, err)

	// Mutate everything handed out.
	data.Metadata["order"] = "caller"
	res.Transaction.Metadata["order"] = "result"
	res.Transaction.Status = simulator.StatusCompleted

	tx, err := sim.GetTransaction(ctx, "A")
	require.NoError(t, err)
	tx.Metadata["order"] = "get"

	all, err := sim.ListTransactions(ctx)
	require.NoError(t, err)
	listed := all["A"]
	listed.Metadata["order"] = "list"
	listed.Status = simulator.StatusFailed

	resolved, err := sim.Resolve(ctx, "A", simulator.OutcomeApprove)
	require.NoError(t, err)
	*resolved.CompletedAt = time.Time{}

	final, err := sim.GetTransaction(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "1", final.Metadata["order"])
	assert.Equal(t, simulator.StatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.False(t, final.CompletedAt.IsZero())
}

func TestConcurrentResolutionIsExclusive(t *testing.T) {
	ctx := context.Background()
	sim := newSimulator(t, simulator.DefaultConfig())
	initiate(t, sim, "A", "")

	const workers = 64
	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		invalidState atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				_, err = sim.Resolve(ctx, "A", simulator.OutcomeApprove)
			case 1:
				_, err = sim.Resolve(ctx, "A", simulator.OutcomeReject)
			default:
				_, err = sim.Cancel(ctx, "A")
			}
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, apierrors.ErrInvalidState):
				invalidState.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), invalidState.Load())
}

func TestDelayDoesNotBlockOtherReferences(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	entered := make(chan struct{})
	var calls atomic.Int32
	sleeper := func(ctx context.Context, d time.Duration) error {
		if calls.Add(1) == 1 {
			close(entered)
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	cfg := simulator.DefaultConfig()
	cfg.SimulateDelay = true
	sim := newSimulator(t, cfg, simulator.WithSleeper(sleeper))

	done := make(chan error, 1)
	go func() {
		_, err := sim.Initiate(ctx, payment("slow", 100), "", "", "")
		done <- err
	}()
	<-entered

	// While "slow" is waiting out its delay, other references proceed.
	initiate(t, sim, "fast", "")
	_, err := sim.Resolve(ctx, "fast", simulator.OutcomeApprove)
	require.NoError(t, err)
	status, err := sim.GetStatus(ctx, "fast")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)

	select {
	case err := <-done:
		t.Fatalf("delayed initiate returned early: %v", err)
	default:
	}

	close(release)
	require.NoError(t, <-done)
	_, err = sim.GetTransaction(ctx, "slow")
	require.NoError(t, err)
}

func TestDelayDurationWithinBounds(t *testing.T) {
	var (
		mu    sync.Mutex
		slept []time.Duration
	)
	sleeper := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}

	cfg := simulator.DefaultConfig()
	cfg.SimulateDelay = true
	cfg.MinDelay = 10 * time.Millisecond
	cfg.MaxDelay = 40 * time.Millisecond
	sim := newSimulator(t, cfg, simulator.WithSleeper(sleeper), simulator.WithRandom(random.Seeded(3)))

	for i := 0; i < 20; i++ {
		ref := "D" + decimal.NewFromInt(int64(i)).String()
		initiate(t, sim, ref, "")
		_, err := sim.GetStatus(context.Background(), ref)
		require.NoError(t, err)
	}

	// Resolve, cancel and lookups never sleep.
	_, err := sim.Resolve(context.Background(), "D0", simulator.OutcomeApprove)
	require.NoError(t, err)
	_, err = sim.GetTransaction(context.Background(), "D0")
	require.NoError(t, err)

	require.Len(t, slept, 40)
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 40*time.Millisecond)
	}
}

func TestDelayHonoursContextCancellation(t *testing.T) {
	cfg := simulator.DefaultConfig()
	cfg.SimulateDelay = true
	cfg.MinDelay = time.Hour
	cfg.MaxDelay = time.Hour
	sim := newSimulator(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Initiate(ctx, payment("A", 100), "", "", "")
	require.ErrorIs(t, err, context.Canceled)

	_, err = sim.GetStatus(ctx, "A")
	require.ErrorIs(t, err, context.Canceled)

	all, err := sim.ListTransactions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDuplicatePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrite replaces the record", func(t *testing.T) {
		sim := newSimulator(t, simulator.DefaultConfig())
		first := initiate(t, sim, "A", "")
		_, err := sim.Resolve(ctx, "A", simulator.OutcomeApprove)
		require.NoError(t, err)

		second := initiate(t, sim, "A", "")
		assert.NotEqual(t, first.Token, second.Token)

		tx, err := sim.GetTransaction(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, simulator.StatusPending, tx.Status)
		assert.Equal(t, second.Token, tx.Token)
	})

	t.Run("reject keeps the existing record", func(t *testing.T) {
		cfg := simulator.DefaultConfig()
		cfg.DuplicatePolicy = simulator.DuplicateReject
		sim := newSimulator(t, cfg)
		first := initiate(t, sim, "A", "")

		_, err := sim.Initiate(ctx, payment("A", 999), "", "", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, apierrors.ErrDuplicate)
		assert.Equal(t, apierrors.ErrCodeDuplicateReference, apierrors.CodeOf(err))

		tx, err := sim.GetTransaction(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, first.Token, tx.Token)
		assert.True(t, tx.Amount.Equal(decimal.NewFromInt(10000)))
	})
}

func TestConfigurationSurface(t *testing.T) {
	sim := newSimulator(t, simulator.DefaultConfig())

	rates := []struct {
		in, want float64
	}{
		{0.3, 0.3},
		{-1, 0},
		{2, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
		{1, 1},
		{0, 0},
	}
	for _, r := range rates {
		sim.SetSuccessRate(r.in)
		assert.Equal(t, r.want, sim.SuccessRate(), "SetSuccessRate(%v)", r.in)
	}

	sim.SetSimulateDelay(true)
	sim.SetDelayBounds(-5*time.Millisecond, 20*time.Millisecond)
	enabled, min, max := sim.DelaySettings()
	assert.True(t, enabled)
	assert.Equal(t, time.Duration(0), min)
	assert.Equal(t, 20*time.Millisecond, max)

	sim.SetDelayBounds(50*time.Millisecond, 10*time.Millisecond)
	_, min, max = sim.DelaySettings()
	assert.Equal(t, 50*time.Millisecond, min)
	assert.Equal(t, 50*time.Millisecond, max)

	sim.SetSimulateDelay(false)
	enabled, _, _ = sim.DelaySettings()
	assert.False(t, enabled)
}

func TestNewClampsInitialConfig(t *testing.T) {
	cfg := simulator.DefaultConfig()
	cfg.SuccessRate = 7
	cfg.MinDelay = -time.Second
	cfg.MaxDelay = -time.Second
	sim := newSimulator(t, cfg)

	assert.Equal(t, 1.0, sim.SuccessRate())
	_, min, max := sim.DelaySettings()
	assert.Equal(t, time.Duration(0), min)
	assert.Equal(t, time.Duration(0), max)
}

func TestMetricsInstrumentation(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	sim := newSimulator(t, simulator.DefaultConfig(), simulator.WithMetrics(m))

	initiate(t, sim, "A", "https://shop.test/hook")
	initiate(t, sim, "B", "")
	initiate(t, sim, "C", "")
	_, err := sim.Resolve(ctx, "A", simulator.OutcomeApprove)
	require.NoError(t, err)
	_, err = sim.Resolve(ctx, "A", simulator.OutcomeApprove)
	require.Error(t, err)
	_, err = sim.Cancel(ctx, "B")
	require.NoError(t, err)
	_, err = sim.GetStatus(ctx, "missing")
	require.Error(t, err)

	assert.Equal(t, 3.0, promtest.ToFloat64(m.TransactionsInitiatedTotal.WithLabelValues("XOF")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.TransactionsResolvedTotal.WithLabelValues("COMPLETED", "manual")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.TransactionsCancelledTotal))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.TransactionsStored))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.WebhooksEmittedTotal.WithLabelValues(callbacks.EventTransactionCompleted)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ErrorsTotal.WithLabelValues("resolve", string(apierrors.ErrCodeInvalidState))))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.ErrorsTotal.WithLabelValues("status", string(apierrors.ErrCodeTransactionNotFound))))

	require.NoError(t, sim.Clear(ctx))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.TransactionsStored))
}
