package envelope

import "go.uber.org/fx"

// Module provides the fx dependency injection options for the envelope package
var Module = fx.Options(
	fx.Provide(NewDecoder),
)
