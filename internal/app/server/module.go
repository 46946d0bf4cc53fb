package server

import "go.uber.org/fx"

// Module provides the fx dependency injection options for the server package
var Module = fx.Options(
	fx.Provide(NewServer),
)
