// cmd/cam-timelapse/main.go
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Carrega .env na raiz (se não existir, só loga aviso)
	if err := godotenv.Load(); err != nil {
		slog.Warn("could not load .env", "component", "main", "err", err)
	} else {
		slog.Info(".env loaded", "component", "main")
	}

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "component", "main", "err", err)
		os.Exit(1)
	}
}
