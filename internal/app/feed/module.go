package feed

import "go.uber.org/fx"

// Module provides the fx dependency injection options for the feed package
var Module = fx.Options(
	fx.Provide(NewServer),
	fx.Provide(NewClient),
	fx.Provide(NewRunner),
)
