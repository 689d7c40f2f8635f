// cmd/lncli is a local inspection tool: since the gRPC/macaroon control
// plane is an explicit non-goal (spec.md's Non-goals; see DESIGN.md's
// "Dropped teacher dependencies"), this CLI has no daemon to dial. It
// opens the same channeldb and gossip graph files the daemon writes
// (spec §4.8) directly, read-only, and prints what it finds.
//
// Adapted from the teacher's cmd/lncli/main.go: the urfave/cli app
// skeleton and global --datadir-style flag are kept, its gRPC dial
// logic and every command that required a running lnd are dropped.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[lncli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "lncli"
	app.Usage = "inspect a node's persisted channel and gossip state"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "channeldb",
			Value: "channel.db",
			Usage: "path to the bbolt channel database",
		},
		cli.StringFlag{
			Name:  "graphdb",
			Value: "graph.db",
			Usage: "path to the sqlite gossip graph database",
		},
	}
	app.Commands = []cli.Command{
		listChannelsCommand,
		showChannelCommand,
		listPeersCommand,
		showInvoiceCommand,
		listGraphChannelsCommand,
		showNodeCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
