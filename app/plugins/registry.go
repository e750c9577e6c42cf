// Package plugins registers named factories for the bid-winner evaluator
// config selects by name, using the same factory.Registry pattern
// core/metrics uses for pluggable sinks.
package plugins

import (
	"github.com/fleetcore/dispatchd/core/auction"
	"github.com/fleetcore/dispatchd/core/factory"
)

// Evaluators holds every registered bid-winner evaluator factory, keyed by
// the module type name config.Config.Evaluator.Type selects.
var Evaluators = factory.NewRegistry[auction.Evaluator]()

// RegisterEvaluator adds an evaluator factory under name. Called from
// init() in builtin.go; panics on duplicate registration since that can
// only happen from a programming error, not bad config.
func RegisterEvaluator(name string, f factory.Factory[auction.Evaluator]) {
	if err := Evaluators.Register(name, f); err != nil {
		panic(err)
	}
}
