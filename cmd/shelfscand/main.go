// Command shelfscand runs the Shelfscan API server.
// Configuration comes from SHELFSCAN_* environment variables; see
// internal/app/config.go for the full list.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/shelfscan/shelfscan/internal/app"
	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/server"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	logFile := flag.String("log-file", "", "write JSON logs to this file instead of stdout")
	flag.Parse()

	var logger logging.Logger
	if *logFile != "" {
		logger = logging.NewFileLogger("shelfscand", *logFile, 50, 3)
	} else {
		logger = logging.NewStdoutLogger("shelfscand")
	}

	srv, err := server.NewServer(server.Config{
		ListenAddr: *addr,
		AppConfig:  app.FromEnv(),
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer srv.Close()

	fmt.Printf("Shelfscan API listening on %s\n", *addr)
	fmt.Printf("Swagger UI at http://localhost%s/swagger/index.html\n", *addr)

	if err := srv.HTTPServer().ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
