package server

import (
	"github.com/shelfscan/shelfscan/internal/app"
	"github.com/shelfscan/shelfscan/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// AppConfig configures the orchestrator; nil means defaults.
	AppConfig *app.Config

	// Logger is optional; nil means a stdout JSON logger.
	Logger logging.Logger
}
