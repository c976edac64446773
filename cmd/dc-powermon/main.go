package main

import (
	"fmt"
	"os"

	powermon "github.com/TheCacophonyProject/dc-powermon/internal/dc-powermon"
	client "github.com/TheCacophonyProject/dc-powermon/internal/dc-powermon-client"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Set with -ldflags "-X main.version=..."
var version = "<not set>"

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	if len(os.Args) < 2 {
		log.Info("Usage: dc-powermon <monitor|client> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "monitor":
		err = powermon.Run(args, version)
	case "client":
		err = client.Run(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
