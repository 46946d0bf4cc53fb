package config

import "time"

// app constants
const (
	AppName = "xray"

	Version = "0.3.0"
)

// logging constants
const (
	LogLevel  = "info"
	LogFormat = "console"
)

// ingress server constants
const (
	ServerHost = "127.0.0.1"
	ServerPort = 44827

	ShutdownTimeout = 5 * time.Second
)

// store constants
const (
	StorePath = "xray.db"
)

// feed constants
const (
	SocketDir         = "/tmp"
	SocketPrefix      = "xray-"
	SocketSuffix      = ".sock"
	SocketDialTimeout = 500 * time.Millisecond

	FeedBufferSize = 64
)

// bus constants
const (
	BusBufferSize = 256
)

// config file constants
const (
	FileName = "xray.yaml"
	EnvFile  = ".env"

	EnvPrefix = "XRAY"

	WatchDebounce = 300 * time.Millisecond
)
