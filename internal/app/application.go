package app

import (
	"log/slog"

	"busview.transitireland.org/internal/config"
	"busview.transitireland.org/internal/transit"
)

// Application holds the dependencies for the HTTP handlers, helpers, and
// middleware.
type Application struct {
	Config  *config.Config
	Logger  *slog.Logger
	Manager *transit.Manager
	Poller  *transit.Poller
}
