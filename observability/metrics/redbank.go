package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type RedBankMetrics struct {
	actions        *prometheus.CounterVec
	liquidations   *prometheus.CounterVec
	indexes        *prometheus.GaugeVec
	rates          *prometheus.GaugeVec
	protocolIncome *prometheus.GaugeVec
}

var (
	redBankOnce     sync.Once
	redBankRegistry *RedBankMetrics
)

// RedBank returns the process-wide red bank collectors, registering them on
// first use.
func RedBank() *RedBankMetrics {
	redBankOnce.Do(func() {
		redBankRegistry = &RedBankMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "redbank_actions_total",
				Help: "Count of red bank actions by outcome.",
			}, []string{"action", "outcome"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "redbank_liquidations_total",
				Help: "Count of executed liquidations by collateral and debt asset.",
			}, []string{"collateral", "debt"}),
			indexes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "redbank_market_index",
				Help: "Latest liquidity and borrow index per market.",
			}, []string{"asset", "kind"}),
			rates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "redbank_market_rate",
				Help: "Latest per-annum liquidity and borrow rate per market.",
			}, []string{"asset", "kind"}),
			protocolIncome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "redbank_protocol_income_to_distribute",
				Help: "Undistributed protocol income per market in asset units.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			redBankRegistry.actions,
			redBankRegistry.liquidations,
			redBankRegistry.indexes,
			redBankRegistry.rates,
			redBankRegistry.protocolIncome,
		)
	})
	return redBankRegistry
}

func (m *RedBankMetrics) ObserveAction(action string, err error) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}

func (m *RedBankMetrics) ObserveLiquidation(collateral, debt string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(collateral, debt).Inc()
}

// ObserveMarket records a market snapshot taken after a committed action.
func (m *RedBankMetrics) ObserveMarket(asset string, liquidityIndex, borrowIndex, liquidityRate, borrowRate, income float64) {
	if m == nil {
		return
	}
	m.indexes.WithLabelValues(asset, "liquidity").Set(liquidityIndex)
	m.indexes.WithLabelValues(asset, "borrow").Set(borrowIndex)
	m.rates.WithLabelValues(asset, "liquidity").Set(liquidityRate)
	m.rates.WithLabelValues(asset, "borrow").Set(borrowRate)
	m.protocolIncome.WithLabelValues(asset).Set(income)
}
