package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRegistry_Invoke(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", func(_ context.Context, args json.RawMessage) (any, error) {
		var v map[string]string
		if err := json.Unmarshal(args, &v); err != nil {
			return nil, err
		}
		return v, nil
	})

	got, err := r.Invoke(context.Background(), "echo", json.RawMessage(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got != `{"k":"v"}` {
		t.Errorf("unexpected result: %s", got)
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Invoke(context.Background(), "missing", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestRegistry_HandlerErrorWrapped(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register("fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, boom
	})
	_, err := r.Invoke(context.Background(), "fail", nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped handler error, got %v", err)
	}
}

func TestRecommendAccountType_Beginner(t *testing.T) {
	rec := RecommendAccountType(RecommendArgs{Capital: 50, Experience: "principiante"})
	if rec.RecommendedAccount != AccountStandard {
		t.Errorf("expected Standard for beginner, got %s", rec.RecommendedAccount)
	}
}

func TestRecommendAccountType_Scalper(t *testing.T) {
	rec := RecommendAccountType(RecommendArgs{Capital: 2000, Experience: "avanzado", TradingStyle: "scalping"})
	if rec.RecommendedAccount != AccountRaw {
		t.Errorf("expected Raw Spreads for scalper, got %s", rec.RecommendedAccount)
	}
	if len(rec.Alternatives) == 0 {
		t.Error("expected alternatives for a multi-match profile")
	}
}

func TestRecommendAccountType_Fallback(t *testing.T) {
	rec := RecommendAccountType(RecommendArgs{Capital: 150, Experience: "ninguna"})
	if rec.RecommendedAccount != AccountStandard {
		t.Errorf("expected Standard fallback, got %s", rec.RecommendedAccount)
	}
}

func TestCalculateTradingCosts_RawSpreads(t *testing.T) {
	costs := CalculateTradingCosts(TradingCostArgs{
		AccountType:    AccountRaw,
		Instrument:     "EURUSD",
		LotSize:        1,
		TradesPerMonth: 20,
	})
	// 0.0 pips spread, $3.5 commission both sides
	if costs.SpreadPerTrade != 0 {
		t.Errorf("expected zero spread cost, got %v", costs.SpreadPerTrade)
	}
	if costs.CommissionPerTrade != 7.0 {
		t.Errorf("expected $7 round-trip commission, got %v", costs.CommissionPerTrade)
	}
	if costs.MonthlyEstimate != 140.0 {
		t.Errorf("expected $140/month, got %v", costs.MonthlyEstimate)
	}
}

func TestCalculateTradingCosts_StandardEURUSD(t *testing.T) {
	costs := CalculateTradingCosts(TradingCostArgs{AccountType: AccountStandard})
	// 1.1 pips * $10 * 1 lot
	if costs.TotalPerTrade != 11.0 {
		t.Errorf("expected $11 per trade, got %v", costs.TotalPerTrade)
	}
}

func TestCalculateTradingCosts_JPYPipValue(t *testing.T) {
	costs := CalculateTradingCosts(TradingCostArgs{AccountType: AccountStandard, Instrument: "USDJPY"})
	// 1.2 pips * $9.12
	if costs.TotalPerTrade != 10.94 {
		t.Errorf("expected $10.94 per trade, got %v", costs.TotalPerTrade)
	}
}

func TestExplainConcept(t *testing.T) {
	if got := ExplainConcept("qué es el spread"); !strings.Contains(got, "spread") {
		t.Errorf("expected spread explanation, got %q", got)
	}
	if got := ExplainConcept("astrología"); !strings.Contains(got, "Puedo explicar") {
		t.Errorf("expected fallback listing known concepts, got %q", got)
	}
}

func TestMarketHours(t *testing.T) {
	if got := MarketHours("forex"); !strings.Contains(got, "24 horas") {
		t.Errorf("unexpected forex hours: %q", got)
	}
	if got := MarketHours("otro"); !strings.Contains(got, "Forex") {
		t.Errorf("expected general fallback, got %q", got)
	}
}

func TestRegisteredToolNames(t *testing.T) {
	r := NewRegistry()
	RegisterForex(r)
	RegisterKnowledge(r)

	names := r.Names()
	for _, want := range []string{
		"calculate_trading_costs",
		"explain_forex_concept",
		"get_account_comparison",
		"get_market_hours",
		"get_regulation_info",
		"recommend_account_type",
	} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("tool %s not registered", want)
		}
	}
}
