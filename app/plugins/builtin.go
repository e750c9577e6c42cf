package plugins

import "github.com/fleetcore/dispatchd/core/auction"

func init() {
	RegisterEvaluator("lowest_new_cost", func(map[string]any) (auction.Evaluator, error) {
		return auction.LowestNewCost, nil
	})
	RegisterEvaluator("lowest_marginal_cost", func(map[string]any) (auction.Evaluator, error) {
		return auction.LowestMarginalCost, nil
	})
}
