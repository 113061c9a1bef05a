package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"walletlink/internal/journal"
	"walletlink/internal/network"
	"walletlink/internal/wallet"
	"walletlink/internal/web3/provider"
	"walletlink/pkg/logger"
)

var networksCmd = &cli.Command{
	Name:  "networks",
	Usage: "print the network registry and the selectable chains",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		registry, err := loadRegistry(cfg)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHAIN ID\tLABEL\tNAME\tCURRENCY\tRPC")
		for _, d := range registry.Descriptors() {
			rpc := ""
			if len(d.RPCURLs) > 0 {
				rpc = d.RPCURLs[0]
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", d.ChainID, network.Label(d.ChainID), d.ChainName, d.NativeCurrency.Symbol, rpc)
		}
		for _, id := range network.SelectableChains {
			if _, ok := registry.Lookup(id); !ok {
				fmt.Fprintf(w, "%d\t%s\t-\t-\t-\n", id, network.Label(id))
			}
		}
		return w.Flush()
	},
}

var probeCmd = &cli.Command{
	Name:  "probe",
	Usage: "detect the wallet, restore an existing authorisation and print the session",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 10 * time.Second,
			Usage: "how long to wait for the wallet",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if err := initLogger(cfg); err != nil {
			return err
		}
		defer logger.Sync()

		registry, err := loadRegistry(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		p := provider.Detect(ctx, cfg.Provider, logger.Named("provider"))
		defer provider.Release(p)

		store := journal.NewMemoryStore(16)
		manager := newManager(ctx, cfg, p, registry, store)
		defer manager.Close()

		select {
		case <-manager.Ready():
		case <-ctx.Done():
			return fmt.Errorf("wallet probe timed out: %w", ctx.Err())
		}

		out := struct {
			ProviderAvailable bool            `json:"providerAvailable"`
			Session           wallet.Session  `json:"session"`
			Journal           []journal.Entry `json:"journal"`
		}{ProviderAvailable: manager.Available(), Session: manager.Session()}
		if out.Journal, err = store.ListLatest(ctx, journal.DefaultListLimit); err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}
