package app

import (
	"go.uber.org/fx"

	"xray/internal/app/bus"
	"xray/internal/app/envelope"
	"xray/internal/app/feed"
	"xray/internal/app/ingest"
	"xray/internal/app/query"
	"xray/internal/app/selection"
	"xray/internal/app/server"
	"xray/internal/app/session"
	"xray/internal/app/stats"
	"xray/internal/app/store"
	"xray/internal/app/watcher"
)

var Module = fx.Options(
	bus.Module,
	envelope.Module,
	store.Module,
	query.Module,
	selection.Module,
	stats.Module,
	session.Module,
	ingest.Module,
	server.Module,
	feed.Module,
	watcher.Module,
	fx.Provide(NewApp),
	fx.Invoke(Register),
)
