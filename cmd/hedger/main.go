// Command hedger runs delta-hedged strangle backtests over stored minute data.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"delta-hedger/internal/cli"
	"delta-hedger/internal/config"
	"delta-hedger/internal/logging"
)

func main() {
	cfg, err := config.Load(configDirFlag(os.Args[1:]))
	if err != nil {
		if errors.Is(err, config.ErrTemplateCreated) {
			fmt.Fprintf(os.Stderr, "%v\nReview it and run the command again.\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(cfg.LogConfig())

	if err := cli.NewRootCmd(cfg, logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configDirFlag finds --config before cobra parses, since the config must be
// loaded to build the command tree.
func configDirFlag(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}
