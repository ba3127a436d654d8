// peerchat server and tools: HTTP API, realtime feed, status scheduler.
package main

import (
	"log/slog"
	"os"

	"github.com/jhjames1/peerchat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
