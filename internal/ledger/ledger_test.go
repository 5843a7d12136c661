package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/amm"
	"github.com/atmx/rwa-engine/internal/automation"
	"github.com/atmx/rwa-engine/internal/model"
	"github.com/atmx/rwa-engine/internal/registry"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	gov    = common.HexToAddress("0x0000000000000000000000000000000000006070")
	orc    = common.HexToAddress("0x000000000000000000000000000000000000a0c1")
	agent  = common.HexToAddress("0x00000000000000000000000000000000000a9e47")
	issuer = common.HexToAddress("0x00000000000000000000000000000000000001ee")
	user   = common.HexToAddress("0x00000000000000000000000000000000000000a1")

	principals = model.Principals{Governance: gov, Oracle: orc, Agent: agent}
	t0         = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
)

type recorder struct{ batches [][]model.Event }

func (r *recorder) Publish(_ context.Context, events []model.Event) error {
	r.batches = append(r.batches, events)
	return nil
}

func wine(id string) registry.TokenizeParams {
	return registry.TokenizeParams{
		Platform: "splint_invest", AssetID: id, TotalSupply: d("1000000"),
		AssetType: "WINE", Valuation: d("100000"), SharePrice: d("100"), Currency: "EUR",
	}
}

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *time.Time) {
	t.Helper()
	now := t0
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	l := New(principals, opts...)
	if _, _, err := l.RegisterPlatform(context.Background(), issuer, "splint_invest", "https://splint.example"); err != nil {
		t.Fatal(err)
	}
	return l, &now
}

func TestTokenizeCommitsEvents(t *testing.T) {
	rec := &recorder{}
	l, _ := newTestLedger(t, WithSink(rec))
	ctx := context.Background()

	addr, events, err := l.TokenizeAsset(ctx, issuer, wine("BORDEAUX-2019"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != registry.TokenAddress("splint_invest", "BORDEAUX-2019") {
		t.Errorf("token address = %s", addr.Hex())
	}

	var kinds []model.EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Errorf("event not stamped: %+v", e)
		}
	}
	if len(kinds) != 2 || kinds[0] != model.EventTransfer || kinds[1] != model.EventAssetTokenized {
		t.Errorf("event kinds = %v, want [transfer asset_tokenized]", kinds)
	}

	if len(rec.batches) != 2 {
		t.Fatalf("sink batches = %d, want 2 (register, tokenize)", len(rec.batches))
	}
	if len(rec.batches[1]) != len(events) {
		t.Errorf("sink saw %d events, caller saw %d", len(rec.batches[1]), len(events))
	}

	meta, err := l.GetAssetMetadata("splint_invest", "BORDEAUX-2019")
	if err != nil {
		t.Fatal(err)
	}
	if !meta.TotalSupply.Equal(d("1000000")) || meta.Issuer != issuer {
		t.Errorf("metadata = %+v", meta)
	}
	bal, ok := l.BalanceOf(addr, issuer)
	if !ok || !bal.Balance.Equal(d("1000000")) {
		t.Errorf("issuer balance = %+v", bal)
	}
}

func TestRejectedOperationCommitsNothing(t *testing.T) {
	rec := &recorder{}
	l, _ := newTestLedger(t, WithSink(rec))
	ctx := context.Background()

	if _, _, err := l.TokenizeAsset(ctx, issuer, wine("BORDEAUX-2019")); err != nil {
		t.Fatal(err)
	}
	before := len(rec.batches)

	_, events, err := l.TokenizeAsset(ctx, issuer, wine("BORDEAUX-2019"))
	if !errors.Is(err, registry.ErrAssetAlreadyTokenized) {
		t.Fatalf("expected ErrAssetAlreadyTokenized, got %v", err)
	}
	if events != nil {
		t.Errorf("rejected call returned events: %v", events)
	}
	if len(rec.batches) != before {
		t.Error("rejected call reached the sink")
	}
	if got := ErrorKind(err); got != KindAssetAlreadyTokenized {
		t.Errorf("ErrorKind = %s", got)
	}
}

func TestSequenceIsMonotonic(t *testing.T) {
	rec := &recorder{}
	l, _ := newTestLedger(t, WithSink(rec))
	ctx := context.Background()

	for _, id := range []string{"BORDEAUX-2019", "MARGAUX-2015", "PETRUS-2010"} {
		if _, _, err := l.TokenizeAsset(ctx, issuer, wine(id)); err != nil {
			t.Fatal(err)
		}
	}
	var last uint64
	for _, batch := range rec.batches {
		for _, e := range batch {
			if e.Sequence != last+1 {
				t.Fatalf("sequence %d follows %d", e.Sequence, last)
			}
			last = e.Sequence
		}
	}
	if last == 0 {
		t.Fatal("no events recorded")
	}
}

func TestStartSequence(t *testing.T) {
	rec := &recorder{}
	newTestLedger(t, WithSink(rec), WithStartSequence(41))
	if len(rec.batches) == 0 || rec.batches[0][0].Sequence != 42 {
		t.Fatalf("first committed batch = %v", rec.batches)
	}
}

func TestBatchTokenizePartialFailure(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	bad := wine("BAD ID")
	results, events, err := l.BatchTokenize(ctx, issuer, []registry.TokenizeParams{
		wine("BORDEAUX-2019"), bad, wine("BORDEAUX-2019"), wine("MARGAUX-2015"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}
	if results[0].Err != nil || results[3].Err != nil {
		t.Errorf("valid elements failed: %v, %v", results[0].Err, results[3].Err)
	}
	if results[1].Err == nil {
		t.Error("invalid asset id accepted")
	}
	if !errors.Is(results[2].Err, registry.ErrAssetAlreadyTokenized) {
		t.Errorf("duplicate: expected ErrAssetAlreadyTokenized, got %v", results[2].Err)
	}

	tokenized := 0
	for _, e := range events {
		if e.Kind == model.EventAssetTokenized {
			tokenized++
		}
	}
	if tokenized != 2 {
		t.Errorf("asset_tokenized events = %d, want 2", tokenized)
	}
	if got := len(l.ListAssets("splint_invest")); got != 2 {
		t.Errorf("assets = %d, want 2", got)
	}
}

func TestTokenizeZeroCallerIsAtomic(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, events, err := l.TokenizeAsset(ctx, common.Address{}, wine("BORDEAUX-2019"))
	if err == nil {
		t.Fatal("zero caller accepted")
	}
	if kind := ErrorKind(err); kind != KindInvalidRequest {
		t.Errorf("kind = %s, want %s", kind, KindInvalidRequest)
	}
	if len(events) != 0 {
		t.Errorf("rejected tokenize emitted %d events", len(events))
	}

	addr, _, err := l.TokenizeAsset(ctx, issuer, wine("BORDEAUX-2019"))
	if err != nil {
		t.Fatalf("retry with issuer: %v (kind %s)", err, ErrorKind(err))
	}
	if addr != registry.TokenAddress("splint_invest", "BORDEAUX-2019") {
		t.Errorf("token address = %s", addr.Hex())
	}

	results, _, err := l.BatchTokenize(ctx, common.Address{}, []registry.TokenizeParams{wine("MARGAUX-2015")})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Err == nil {
		t.Fatal("batch element with zero caller accepted")
	}
	if _, _, err := l.TokenizeAsset(ctx, issuer, wine("MARGAUX-2015")); err != nil {
		t.Errorf("retry after rejected batch element: %v", err)
	}
}

func TestMutateReleasesLockOnPanic(t *testing.T) {
	panicking := true
	l, _ := newTestLedger(t, WithSink(SinkFunc(func(context.Context, []model.Event) error {
		if panicking {
			panic("sink exploded")
		}
		return nil
	})))
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the sink panic to propagate")
			}
		}()
		_, _, _ = l.TokenizeAsset(ctx, issuer, wine("BORDEAUX-2019"))
	}()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the operation panic to propagate")
			}
		}()
		_, _, _ = mutate(ctx, l, "explode", func() (struct{}, error) {
			l.Emit(model.EventAssetTokenized, issuer, "x", nil)
			panic("component exploded")
		})
	}()

	panicking = false
	done := make(chan error, 1)
	go func() {
		_, events, err := l.TokenizeAsset(ctx, issuer, wine("MARGAUX-2015"))
		for _, e := range events {
			if e.Subject == "x" {
				err = errors.New("stale pending events leaked into the next commit")
			}
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("operation after panic: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ledger lock still held after panic")
	}
}

// The full flow: tokenize two wines, pool them, delegate and let the agent
// execute a trade on the user's behalf.
func TestAutomatedTradeFlow(t *testing.T) {
	l, now := newTestLedger(t)
	ctx := context.Background()
	comps := Components()

	bordeaux, _, err := l.TokenizeAsset(ctx, issuer, wine("BORDEAUX-2019"))
	if err != nil {
		t.Fatal(err)
	}
	margaux, _, err := l.TokenizeAsset(ctx, issuer, wine("MARGAUX-2015"))
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := l.CreatePool(ctx, issuer, bordeaux, margaux, nil); err != nil {
		t.Fatal(err)
	}
	if fee := l.DefaultSwapFee(); fee != 30 {
		t.Errorf("default fee = %d", fee)
	}
	mustOK := func(_ []model.Event, err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	mustOK(l.Approve(ctx, issuer, bordeaux, comps.AMM, d("100000")))
	mustOK(l.Approve(ctx, issuer, margaux, comps.AMM, d("50000")))
	if _, _, err := l.AddLiquidity(ctx, issuer, bordeaux, margaux, d("100000"), d("50000"), decimal.Zero, decimal.Zero); err != nil {
		t.Fatal(err)
	}

	out, ok := l.GetAmountOut(bordeaux, margaux, d("1000"))
	if !ok || !out.Equal(d("493")) {
		t.Fatalf("quote = %s, %v; want 493", out, ok)
	}

	mustOK(l.Transfer(ctx, issuer, bordeaux, user, d("10000")))
	mustOK(l.Approve(ctx, user, bordeaux, comps.Automation, d("10000")))
	if _, _, err := l.DelegateTrading(ctx, user, d("1000"), d("2500"), []string{"BORDEAUX-2019"}); err != nil {
		t.Fatal(err)
	}

	q, _, err := l.QueueAutomatedTrade(ctx, agent, automation.QueueParams{
		User:         user,
		SellPlatform: "splint_invest",
		SellAsset:    "BORDEAUX-2019",
		BuyPlatform:  "splint_invest",
		BuyAsset:     "MARGAUX-2015",
		Amount:       d("1000"),
		MinAmountOut: d("490"),
		Deadline:     t0.Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	*now = t0.Add(10 * time.Minute)
	done, events, err := l.ExecuteAutomatedTrade(ctx, agent, q.TradeID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != model.TradeExecuted || !done.AmountOut.Equal(d("493")) {
		t.Errorf("trade = %+v", done)
	}
	if events[len(events)-1].Kind != model.EventTradeExecuted {
		t.Errorf("last event = %s", events[len(events)-1].Kind)
	}
	if bal, _ := l.BalanceOf(margaux, user); !bal.Balance.Equal(d("493")) {
		t.Errorf("user MARGAUX = %s", bal.Balance)
	}

	pool, ok := l.GetPool(bordeaux, margaux)
	if !ok {
		t.Fatal("pool missing")
	}
	if pool.TotalLiquidity.IsZero() {
		t.Error("pool liquidity is zero")
	}

	// Over the per-trade size.
	_, _, err = l.QueueAutomatedTrade(ctx, agent, automation.QueueParams{
		User: user, SellPlatform: "splint_invest", SellAsset: "BORDEAUX-2019",
		BuyPlatform: "splint_invest", BuyAsset: "MARGAUX-2015",
		Amount: d("1001"), Deadline: t0.Add(time.Hour),
	})
	if ErrorKind(err) != KindTradeLimitExceeded {
		t.Errorf("expected TradeLimitExceeded, got %v", err)
	}
}

func TestOracleThroughLedger(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.UpdatePrice(ctx, issuer, "splint_invest", "BORDEAUX-2019", d("100")); ErrorKind(err) != KindOnlyOracle {
		t.Errorf("expected OnlyOracle, got %v", err)
	}
	if _, err := l.UpdatePrice(ctx, orc, "splint_invest", "BORDEAUX-2019", d("100")); err != nil {
		t.Fatal(err)
	}
	if _, err := l.UpdatePrice(ctx, orc, "masterworks", "BORDEAUX-2019", d("105")); err != nil {
		t.Fatal(err)
	}
	spread, err := l.CalculateArbitrageSpread("BORDEAUX-2019", "splint_invest", "masterworks")
	if err != nil {
		t.Fatal(err)
	}
	if !spread.Equal(d("500")) {
		t.Errorf("spread = %s bps, want 500", spread)
	}

	req, _, err := l.RequestCrossPlatformPrices(ctx, user, "BORDEAUX-2019", []string{"splint_invest", "masterworks"})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(l.PendingRequests()); got != 1 {
		t.Fatalf("pending = %d", got)
	}
	for _, p := range req.Platforms {
		if _, err := l.FulfillPriceRequest(ctx, orc, req.RequestID, p, d("101")); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(l.PendingRequests()); got != 0 {
		t.Errorf("pending after fulfillment = %d", got)
	}
}

func TestErrorKindDefaults(t *testing.T) {
	if got := ErrorKind(errors.New("boom")); got != KindInternal {
		t.Errorf("ErrorKind = %s", got)
	}
	if got := ErrorKind(amm.ErrPoolNotFound); got != KindPoolNotFound {
		t.Errorf("ErrorKind = %s", got)
	}
}
