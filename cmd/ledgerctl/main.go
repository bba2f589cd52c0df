// Command ledgerctl is the operator CLI for the instrument ledger.
//
// Usage:
//
//	ledgerctl [-db ledger.db] <command> [flags]
//
// Run "ledgerctl help" for the command list.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/warp/instrument-ledger/config"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	cfg := config.Register(flag.CommandLine)
	shared := &env{cfg: cfg}

	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&expandCmd{}, "instruments")
	commander.Register(&refreshCmd{env: shared}, "maintenance")
	commander.Register(&upcomingCmd{env: shared}, "reports")
	commander.Register(&reportCmd{env: shared}, "reports")
	commander.Register(&exportCmd{env: shared}, "reports")
	commander.Register(&optionsCmd{env: shared}, "maintenance")

	flag.Parse()
	code := commander.Execute(context.Background())
	shared.close()
	os.Exit(int(code))
}
