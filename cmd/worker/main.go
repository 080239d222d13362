package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scoutline/scoutline-backend/internal/app"
)

// Worker-only process: runs the claim loop and the retention sweeper
// without serving the API. Deployments that want HTTP and workers in one
// process use cmd/main.go instead.
func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()
	a.Log.Info("worker process started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	a.Log.Info("worker process shutting down")
}
