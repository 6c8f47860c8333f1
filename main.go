package main

import (
	"context"
	"os"

	"github.com/TxnLab/lstpool/internal/lib/misc"
)

var App *PoolApp

func main() {
	App = initApp()
	err := App.cliCmd.Run(context.Background(), os.Args)
	if err != nil {
		misc.Errorf(App.logger, "Error: %v", err)
		os.Exit(1)
	}
}
