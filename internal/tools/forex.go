package tools

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// Account types offered by the broker.
const (
	AccountStandard = "Standard"
	AccountRaw      = "Raw Spreads"
	AccountPremium  = "Premium"
	AccountDynamic  = "Dynamic Leverage"
)

// RecommendArgs is the trader profile gathered during the call.
type RecommendArgs struct {
	Capital      float64 `json:"capital"`
	Experience   string  `json:"experience"`
	TradingStyle string  `json:"trading_style,omitempty"` // scalping, day_trading, swing, position
	Priority     string  `json:"priority,omitempty"`      // low_cost, low_spread, high_leverage
}

type accountOption struct {
	Account string `json:"account"`
	Score   int    `json:"score"`
	Reason  string `json:"reason"`
}

// Recommendation is the account suggestion returned to the agent.
type Recommendation struct {
	RecommendedAccount string          `json:"recommended_account"`
	Reason             string          `json:"reason"`
	Alternatives       []accountOption `json:"alternatives,omitempty"`
	CapitalAnalysis    string          `json:"capital_analysis"`
}

// RecommendAccountType picks the broker account that best fits a trader
// profile.
func RecommendAccountType(args RecommendArgs) Recommendation {
	exp := strings.ToLower(args.Experience)
	var options []accountOption

	if args.Capital < 100 || strings.Contains(exp, "principiante") {
		score := 70
		if strings.Contains(exp, "principiante") {
			score = 90
		}
		options = append(options, accountOption{
			Account: AccountStandard,
			Score:   score,
			Reason:  "Ideal para comenzar con bajo capital, sin comisiones y spreads desde 1.1 pips. Depósito mínimo de $5.",
		})
	}

	if args.Capital >= 100 &&
		(args.TradingStyle == "scalping" || args.TradingStyle == "day_trading" ||
			args.Priority == "low_spread" ||
			strings.Contains(exp, "intermedio") || strings.Contains(exp, "avanzado")) {
		score := 85
		if args.TradingStyle == "scalping" {
			score = 95
		}
		options = append(options, accountOption{
			Account: AccountRaw,
			Score:   score,
			Reason:  "Spreads desde 0.0 pips, ideales para operaciones frecuentes. Comisión de $3.5 por lado.",
		})
	}

	if args.Capital >= 1000 {
		score := 75
		if args.Capital >= 5000 {
			score = 90
		}
		options = append(options, accountOption{
			Account: AccountPremium,
			Score:   score,
			Reason:  "Spreads bajos desde 0.8 pips sin comisiones. Ideal para capital significativo.",
		})
	}

	if args.Priority == "high_leverage" || strings.Contains(exp, "avanzado") {
		options = append(options, accountOption{
			Account: AccountDynamic,
			Score:   85,
			Reason:  "Leverage flexible hasta 1:5000 en pares mayores, con ajuste automático según volumen.",
		})
	}

	sort.SliceStable(options, func(i, j int) bool { return options[i].Score > options[j].Score })

	top := accountOption{
		Account: AccountStandard,
		Score:   60,
		Reason:  "Cuenta versátil que se adapta a la mayoría de traders.",
	}
	var alternatives []accountOption
	if len(options) > 0 {
		top = options[0]
		if len(options) > 1 {
			alternatives = options[1:min(len(options), 3)]
		}
	}

	return Recommendation{
		RecommendedAccount: top.Account,
		Reason:             top.Reason,
		Alternatives:       alternatives,
		CapitalAnalysis:    analyzeCapital(args.Capital),
	}
}

func analyzeCapital(capital float64) string {
	switch {
	case capital < 100:
		return "Capital inicial bajo, recomendamos cuenta Standard o practicar con demo."
	case capital < 1000:
		return "Capital moderado, puedes acceder a cuentas Standard o Raw Spreads."
	case capital < 5000:
		return "Buen capital, tienes acceso a todas las cuentas incluyendo Premium."
	default:
		return "Capital excelente, califica para Premium con beneficios VIP."
	}
}

// TradingCostArgs parameterizes a cost estimate.
type TradingCostArgs struct {
	AccountType    string  `json:"account_type"`
	Instrument     string  `json:"instrument,omitempty"`
	LotSize        float64 `json:"lot_size,omitempty"`
	TradesPerMonth int     `json:"trades_per_month,omitempty"`
}

// TradingCosts is the estimated cost breakdown for an account.
type TradingCosts struct {
	AccountType        string  `json:"account_type"`
	Instrument         string  `json:"instrument"`
	SpreadPips         float64 `json:"spread_pips"`
	CommissionPerSide  float64 `json:"commission_per_side"`
	SpreadPerTrade     float64 `json:"spread_per_trade"`
	CommissionPerTrade float64 `json:"commission_per_trade"`
	TotalPerTrade      float64 `json:"total_per_trade"`
	MonthlyEstimate    float64 `json:"monthly_estimate"`
	Recommendation     string  `json:"recommendation"`
}

var spreadTable = map[string]map[string]float64{
	AccountStandard: {"EURUSD": 1.1, "GBPUSD": 1.5, "USDJPY": 1.2},
	AccountRaw:      {"EURUSD": 0.0, "GBPUSD": 0.1, "USDJPY": 0.0},
	AccountPremium:  {"EURUSD": 0.8, "GBPUSD": 1.2, "USDJPY": 0.9},
	AccountDynamic:  {"EURUSD": 0.0, "GBPUSD": 0.1, "USDJPY": 0.0},
}

var commissionTable = map[string]float64{
	AccountRaw: 3.5,
}

// CalculateTradingCosts estimates per-trade and monthly trading costs.
// One pip on major pairs is worth $10 per standard lot, $9.12 on JPY pairs.
func CalculateTradingCosts(args TradingCostArgs) TradingCosts {
	if args.Instrument == "" {
		args.Instrument = "EURUSD"
	}
	if args.LotSize <= 0 {
		args.LotSize = 1.0
	}
	if args.TradesPerMonth <= 0 {
		args.TradesPerMonth = 20
	}

	spread := 1.0
	if table, ok := spreadTable[args.AccountType]; ok {
		if s, ok := table[args.Instrument]; ok {
			spread = s
		}
	}
	commission := commissionTable[args.AccountType]

	pipValue := 10.0
	if strings.Contains(args.Instrument, "JPY") {
		pipValue = 9.12
	}

	spreadCost := spread * pipValue * args.LotSize
	commissionCost := commission * 2 * args.LotSize
	perTrade := spreadCost + commissionCost
	monthly := perTrade * float64(args.TradesPerMonth)

	return TradingCosts{
		AccountType:        args.AccountType,
		Instrument:         args.Instrument,
		SpreadPips:         spread,
		CommissionPerSide:  commission,
		SpreadPerTrade:     round2(spreadCost),
		CommissionPerTrade: round2(commissionCost),
		TotalPerTrade:      round2(perTrade),
		MonthlyEstimate:    round2(monthly),
		Recommendation:     costRecommendation(args.AccountType, args.TradesPerMonth),
	}
}

func costRecommendation(accountType string, tradesPerMonth int) string {
	switch {
	case tradesPerMonth > 50 && accountType != AccountRaw:
		return "Con tantas operaciones mensuales, Raw Spreads podría reducir tus costos significativamente."
	case tradesPerMonth < 10 && accountType == AccountRaw:
		return "Con pocas operaciones, Standard o Premium sin comisiones podrían ser más convenientes."
	default:
		return "Tu selección de cuenta es adecuada para tu volumen de trading."
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RegisterForex wires the pure forex tools into a registry.
func RegisterForex(r *Registry) {
	r.Register("recommend_account_type", func(_ context.Context, args json.RawMessage) (any, error) {
		a, err := decode[RecommendArgs](args)
		if err != nil {
			return nil, err
		}
		return RecommendAccountType(a), nil
	})
	r.Register("calculate_trading_costs", func(_ context.Context, args json.RawMessage) (any, error) {
		a, err := decode[TradingCostArgs](args)
		if err != nil {
			return nil, err
		}
		return CalculateTradingCosts(a), nil
	})
}
