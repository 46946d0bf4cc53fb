package stats

import "go.uber.org/fx"

// Module provides the fx dependency injection options for the stats package
var Module = fx.Options(
	fx.Provide(NewCounters),
)
