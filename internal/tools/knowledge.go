package tools

import (
	"context"
	"encoding/json"
	"strings"
)

var conceptExplanations = map[string]string{
	"spread": "El spread es la diferencia entre el precio de compra y venta, y es el costo de abrir una operación. " +
		"Cuenta Standard: desde 1.1 pips. Cuenta Raw: desde 0.0 pips pero con comisión.",
	"pip": "Un pip es la unidad mínima de cambio de precio. En pares mayores vale $10 por lote standard, " +
		"en pares con JPY aproximadamente $9. Ganancia = pips ganados x valor del pip x lotes.",
	"leverage": "El apalancamiento te permite operar con más dinero del que tienes. Con leverage 1:100 y $1,000 " +
		"controlas posiciones de hasta $100,000. Standard/Premium hasta 1:1000, Dynamic hasta 1:5000, Raw hasta 1:500. " +
		"Mayor leverage implica mayor riesgo.",
	"margin": "El margen es el dinero que necesitas en tu cuenta para mantener una posición abierta. " +
		"Margin call al 100%, stop out al 20%, con protección contra balance negativo.",
	"cfd": "Un CFD es un contrato que te permite especular sobre el precio de un activo sin poseerlo. " +
		"Operas CFDs sobre forex, índices, commodities y criptomonedas, tanto al alza como a la baja.",
	"swap": "El swap es el interés que se cobra o paga por mantener una posición abierta de un día para otro. " +
		"Hay cuentas libres de swap disponibles y swap triple los miércoles.",
	"scalping": "El scalping consiste en muchas operaciones rápidas para ganar pocos pips cada vez. " +
		"Requiere spreads muy bajos (ideal la cuenta Raw Spreads) y ejecución rápida. Se permite sin restricciones.",
}

// ExplainConcept returns a plain-Spanish explanation of a trading concept.
func ExplainConcept(concept string) string {
	lower := strings.ToLower(concept)
	for key, explanation := range conceptExplanations {
		if strings.Contains(lower, key) {
			return explanation
		}
	}
	return "No tengo una explicación detallada de '" + concept + "'. Puedo explicar: spread, pip, " +
		"leverage, margin, CFD, swap y scalping."
}

// MarketHours describes trading hours for a market.
func MarketHours(market string) string {
	switch strings.ToLower(market) {
	case "forex", "divisas", "":
		return "Forex opera 24 horas, 5 días a la semana. Sesiones principales (GMT): Tokio 00:00-09:00, " +
			"Londres 08:00-17:00, Nueva York 13:00-22:00. Mayor liquidez en el overlap Londres-NY de 13:00 a 17:00. " +
			"Cierre semanal del viernes 22:00 al domingo 22:00 GMT."
	case "indices", "índices":
		return "Los horarios de índices dependen del instrumento: US30, SPX500 y NAS100 casi 24/5, " +
			"DAX30 y UK100 en horario europeo, JPN225 en horario asiático. Los spreads aumentan fuera del horario principal."
	default:
		return "Forex: 24 horas 5 días (domingo 22:00 a viernes 22:00 GMT). Índices: según el instrumento. " +
			"Commodities: horarios variables. Consulta la plataforma para horarios exactos."
	}
}

// AccountComparison summarizes the account lineup side by side.
func AccountComparison() string {
	return "Standard: depósito mínimo $5, spreads desde 1.1 pips, sin comisión, leverage hasta 1:1000, para principiantes. " +
		"Raw Spreads: mínimo $100, spreads desde 0.0 pips, comisión $3.5 por lado, leverage hasta 1:500, para traders activos. " +
		"Premium: mínimo $1,000, spreads desde 0.8 pips, sin comisión, leverage hasta 1:1000, para capital alto. " +
		"Dynamic Leverage: mínimo $5, spreads desde 0.0 pips, sin comisión, leverage hasta 1:5000."
}

// RegulationInfo describes the broker's licensing per region.
func RegulationInfo(region string) string {
	switch strings.ToLower(region) {
	case "europa", "chipre", "cysec":
		return "En Europa la entidad está regulada por CySEC con licencia 301/16, cobertura ICF hasta €20,000 " +
			"por cliente, fondos segregados en bancos tier 1 y cumplimiento de MiFID II."
	case "dubai", "dfsa":
		return "En Dubai la entidad está regulada por DFSA con licencia F007051 categoría 3A, " +
			"bajo supervisión de la Dubai Financial Services Authority."
	case "seychelles", "fsa":
		return "En Seychelles la entidad opera con licencia FSA SD047 para clientes internacionales."
	default:
		return "El broker opera bajo múltiples licencias: CySEC 301/16 en Europa con cobertura ICF hasta €20,000, " +
			"DFSA F007051 en Dubai y FSA SD047 en Seychelles. Todas las jurisdicciones ofrecen protección " +
			"contra balance negativo y fondos segregados."
	}
}

// RegisterKnowledge wires the static knowledge tools into a registry.
func RegisterKnowledge(r *Registry) {
	type conceptArgs struct {
		Concept string `json:"concept"`
	}
	type marketArgs struct {
		Market string `json:"market"`
	}
	type regionArgs struct {
		Region string `json:"region"`
	}

	r.Register("explain_forex_concept", func(_ context.Context, args json.RawMessage) (any, error) {
		a, err := decode[conceptArgs](args)
		if err != nil {
			return nil, err
		}
		return ExplainConcept(a.Concept), nil
	})
	r.Register("get_market_hours", func(_ context.Context, args json.RawMessage) (any, error) {
		a, err := decode[marketArgs](args)
		if err != nil {
			return nil, err
		}
		return MarketHours(a.Market), nil
	})
	r.Register("get_account_comparison", func(_ context.Context, _ json.RawMessage) (any, error) {
		return AccountComparison(), nil
	})
	r.Register("get_regulation_info", func(_ context.Context, args json.RawMessage) (any, error) {
		a, err := decode[regionArgs](args)
		if err != nil {
			return nil, err
		}
		return RegulationInfo(a.Region), nil
	})
}
