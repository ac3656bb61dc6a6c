package main

import (
	"github.com/caseframe/backend/internal/server"
	"github.com/caseframe/backend/internal/util"
	"github.com/caseframe/backend/pkg/logger"
	"github.com/caseframe/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
