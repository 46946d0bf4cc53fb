package ingest

import "go.uber.org/fx"

// Module provides the fx dependency injection options for the ingest package
var Module = fx.Options(
	fx.Provide(NewListener),
)
