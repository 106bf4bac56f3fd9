package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `
Ride dispatch coordinator.

Usage:
  dispatch [flags]

Flags:
  -config-path string   path to the yaml config file (default "config.yaml")
  -help                 print this message and exit

Configuration is read from the yaml file, with ${VAR:-default} values
resolved from the environment.
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}
