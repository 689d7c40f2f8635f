package main

import (
	"encoding/hex"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli"

	"github.com/slacerda85/ihodl-sub007/channeldb"
	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

func openDB(ctx *cli.Context) (*channeldb.DB, error) {
	return channeldb.Open(ctx.GlobalString("channeldb"))
}

func openGraph(ctx *cli.Context) (*channeldb.ChannelGraph, error) {
	return channeldb.OpenChannelGraph(ctx.GlobalString("graphdb"))
}

func parseChannelID(s string) (lncrypto.ChannelID, error) {
	var id lncrypto.ChannelID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("channel id must be hex: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("channel id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func parseHash256(s string) (lncrypto.Hash256, error) {
	var h lncrypto.Hash256
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hash must be hex: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

var listChannelsCommand = cli.Command{
	Name:  "channels",
	Usage: "list every channel persisted in the channeldb",
	Action: func(ctx *cli.Context) error {
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.ForEachChannel(func(rec *channeldb.ChannelRecord) error {
			fmt.Printf("%s  state=%-14s capacity=%d sat  local=%d msat  remote=%d msat\n",
				rec.ChannelID, rec.State, rec.CapacitySat, rec.LocalMsat, rec.RemoteMsat)
			return nil
		})
	},
}

var showChannelCommand = cli.Command{
	Name:      "channel",
	Usage:     "show the full persisted record for one channel",
	ArgsUsage: "<channel-id-hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.ShowCommandHelp(ctx, "channel")
		}
		id, err := parseChannelID(ctx.Args().Get(0))
		if err != nil {
			return err
		}

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		rec, err := db.FetchChannel(id)
		if err != nil {
			return err
		}
		spew.Dump(rec)

		store, err := db.FetchRevocationStore(id)
		if err == nil {
			if idx, ok := store.LastIndex(); ok {
				fmt.Printf("revocation store: last_index=%d\n", idx)
			}
		}
		return nil
	},
}

var listPeersCommand = cli.Command{
	Name:  "peers",
	Usage: "list every known peer",
	Action: func(ctx *cli.Context) error {
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		return db.ForEachPeer(func(rec *channeldb.PeerRecord) error {
			fmt.Printf("%x  addr=%s  last_connected=%d\n",
				rec.NodeID.SerializeCompressed(), rec.Address, rec.LastConnected)
			return nil
		})
	},
}

var showInvoiceCommand = cli.Command{
	Name:      "invoice",
	Usage:     "show a locally created invoice by payment hash",
	ArgsUsage: "<payment-hash-hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.ShowCommandHelp(ctx, "invoice")
		}
		hash, err := parseHash256(ctx.Args().Get(0))
		if err != nil {
			return err
		}

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		rec, err := db.FetchInvoice(hash)
		if err != nil {
			return err
		}
		spew.Dump(rec)
		return nil
	},
}

var listGraphChannelsCommand = cli.Command{
	Name:  "graph-channels",
	Usage: "list every channel in the persisted gossip graph",
	Action: func(ctx *cli.Context) error {
		graph, err := openGraph(ctx)
		if err != nil {
			return err
		}
		defer graph.Close()

		return graph.ForEachChannel(func(info *channeldb.ChannelInfo) error {
			fmt.Printf("scid=%d  capacity=%d sat  node1=%x  node2=%x\n",
				info.ShortChannelID, info.CapacitySat, info.Node1ID, info.Node2ID)
			return nil
		})
	},
}

var showNodeCommand = cli.Command{
	Name:      "node",
	Usage:     "show a gossiped node_announcement by node id",
	ArgsUsage: "<node-id-hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.ShowCommandHelp(ctx, "node")
		}
		nodeID, err := hex.DecodeString(ctx.Args().Get(0))
		if err != nil {
			return fmt.Errorf("node id must be hex: %w", err)
		}

		graph, err := openGraph(ctx)
		if err != nil {
			return err
		}
		defer graph.Close()

		node, err := graph.FetchNode(nodeID)
		if err != nil {
			return err
		}
		spew.Dump(node)

		addrs, err := graph.FetchNodeAddresses(nodeID)
		if err != nil {
			return err
		}
		for _, a := range addrs {
			fmt.Printf("  addr type=%d %s:%d\n", a.AddressType, a.Host, a.Port)
		}
		return nil
	},
}
