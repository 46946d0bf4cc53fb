package query

import "go.uber.org/fx"

// Module provides the fx dependency injection options for the query package
var Module = fx.Options(
	fx.Provide(NewEngine),
)
