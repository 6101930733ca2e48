package domain

// Execution scenario IDs
const (
	ScenarioOptimistic  = "optimistic"
	ScenarioRealistic   = "realistic"
	ScenarioPessimistic = "pessimistic"
)

// ExecutionScenarioOptimistic models deep books and maker fills.
func ExecutionScenarioOptimistic() ExecutionConfig {
	return ExecutionConfig{
		SpreadPct:       0.01,
		SlippagePct:     0.01,
		MakerFeePct:     0.02,
		TakerFeePct:     0.05,
		UseMarketOrders: false,
	}
}

// ExecutionScenarioRealistic models typical perpetual-futures taker execution.
func ExecutionScenarioRealistic() ExecutionConfig {
	return ExecutionConfig{
		SpreadPct:       0.02,
		SlippagePct:     0.05,
		MakerFeePct:     0.02,
		TakerFeePct:     0.05,
		UseMarketOrders: true,
		FundingRatePct:  0.01,
	}
}

// ExecutionScenarioPessimistic models thin books and volatile funding.
func ExecutionScenarioPessimistic() ExecutionConfig {
	return ExecutionConfig{
		SpreadPct:       0.1,
		SlippagePct:     0.2,
		MakerFeePct:     0.04,
		TakerFeePct:     0.075,
		UseMarketOrders: true,
		FundingRatePct:  0.05,
	}
}

// ExecutionScenario returns the preset for id.
func ExecutionScenario(id string) (ExecutionConfig, bool) {
	switch id {
	case ScenarioOptimistic:
		return ExecutionScenarioOptimistic(), true
	case ScenarioRealistic:
		return ExecutionScenarioRealistic(), true
	case ScenarioPessimistic:
		return ExecutionScenarioPessimistic(), true
	}
	return ExecutionConfig{}, false
}
