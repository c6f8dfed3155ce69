package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/olympus-market/olympus-client/cmd/olympus-client/config"
	"github.com/olympus-market/olympus-client/internal/errs"
	"github.com/olympus-market/olympus-client/internal/market"
	olympus "github.com/olympus-market/olympus-client/internal/olympus-client"
	"github.com/olympus-market/olympus-client/internal/reconcile"
	"github.com/olympus-market/olympus-client/internal/session"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local API and event stream for the UI",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()
		return olympus.Run(ctx, olympus.BuildInfo{
			Version:   Version,
			Commit:    Commit,
			BuildDate: BuildDate,
		}, configFile)
	},
}

var ownedAccount string

var ownedCmd = &cobra.Command{
	Use:   "owned",
	Short: "List tokens held by an account and not listed for sale",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !common.IsHexAddress(ownedAccount) {
			return errs.Invalid("--account %q is not an address", ownedAccount)
		}
		return withApp(cmd, func(ctx context.Context, app *olympus.App) error {
			account := common.HexToAddress(ownedAccount)
			owned, err := app.Reconciler.LoadOwned(ctx, session.Session{
				Account: &account,
				ChainID: app.ChainID,
				Status:  session.Connected,
			})
			if err != nil {
				return err
			}
			return printJSON(owned)
		})
	},
}

var marketQuery, marketMin, marketMax string

var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "List active fixed-price listings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		filter, err := reconcile.ParseFilter(marketQuery, marketMin, marketMax)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *olympus.App) error {
			listings, err := app.Reconciler.LoadMarketplace(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"filter": filter.View(), "listings": listings})
		})
	},
}

var auctionsCmd = &cobra.Command{
	Use:   "auctions",
	Short: "List active auctions against chain time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *olympus.App) error {
			auctions, err := app.Reconciler.LoadAuctions(ctx, app.Heads.Now())
			if err != nil {
				return err
			}
			return printJSON(auctions)
		})
	},
}

var mintReq market.MintRequest
var mintImage string

var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Upload an image and its metadata, then mint a token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		image, err := os.ReadFile(mintImage)
		if err != nil {
			return errs.Invalid("read --image: %v", err)
		}
		req := mintReq
		req.ImageName = mintImage
		req.Image = image

		return withApp(cmd, func(ctx context.Context, app *olympus.App) error {
			if _, err := app.Sessions.Connect(ctx); err != nil {
				return err
			}
			res, err := app.Intents.Mint(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(_ *cobra.Command, _ []string) error {
		return printJSON(olympus.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate})
	},
}

func init() {
	ownedCmd.Flags().StringVar(&ownedAccount, "account", "", "account address")
	_ = ownedCmd.MarkFlagRequired("account")

	marketCmd.Flags().StringVar(&marketQuery, "q", "", "case-insensitive name filter")
	marketCmd.Flags().StringVar(&marketMin, "min", "", "minimum price in ETH")
	marketCmd.Flags().StringVar(&marketMax, "max", "", "maximum price in ETH")

	mintCmd.Flags().StringVar(&mintReq.Name, "name", "", "token name")
	mintCmd.Flags().StringVar(&mintReq.Description, "description", "", "token description")
	mintCmd.Flags().StringVar(&mintReq.Category, "category", "Gods", "Gods, Titans, Heroes, Artifacts or Monsters")
	mintCmd.Flags().StringVar(&mintImage, "image", "", "image file to upload")
	_ = mintCmd.MarkFlagRequired("name")
	_ = mintCmd.MarkFlagRequired("image")
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// withApp runs fn against a fully wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *olympus.App) error) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	app, err := olympus.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := fn(ctx, app); err != nil {
		log.Error("command failed", "command", cmd.Name(), "code", errs.Code(err), "error", err)
		return errors.Wrap(err, cmd.Name())
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
