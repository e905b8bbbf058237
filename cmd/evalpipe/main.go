// Command evalpipe assembles the model evaluation pipeline described by a configuration file and
// runs it, on SageMaker Pipelines or in the current process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logrus.Error(err)
		stop()
		os.Exit(1)
	}
}
