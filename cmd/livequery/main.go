// Command livequery is a runnable demonstration of the subscription
// execution core: it stands up an in-memory storage engine, subscribes
// a Select and a Semijoin execution unit, commits a transaction, and
// prints the deltas the registry dispatches to each subscriber.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mantisdb/livequery/authctx"
	"github.com/mantisdb/livequery/config"
	"github.com/mantisdb/livequery/hash"
	"github.com/mantisdb/livequery/logging"
	"github.com/mantisdb/livequery/query"
	"github.com/mantisdb/livequery/rel"
	"github.com/mantisdb/livequery/storage"
	"github.com/mantisdb/livequery/subscription"
	"github.com/mantisdb/livequery/vm"
	"github.com/mantisdb/livequery/wire"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// VersionInfo is the shape printed by the version subcommand.
type VersionInfo struct {
	Version   string
	GoVersion string
	Platform  string
}

func getVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func main() {
	root := &cobra.Command{
		Use:   "livequery",
		Short: "Subscription execution core demo",
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := getVersionInfo()
			fmt.Printf("livequery %s\n", info.Version)
			fmt.Printf("Go Version: %s\n", info.GoVersion)
			fmt.Printf("Platform: %s\n", info.Platform)
			return nil
		},
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the demo scenario against an in-memory engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.LogLevel(config.ParseLogLevel(cfg.Logging.Level)), cfg.Logging.JSON)
			if err != nil {
				return err
			}
			defer logger.Sync()

			codec, err := wire.ByName(cfg.Wire.Codec)
			if err != nil {
				return err
			}

			return runDemo(cmd.Context(), cfg, logger.WithComponent("demo"), codec)
		},
	}
}

func runDemo(ctx context.Context, cfg *config.Config, log *logging.Logger, codec wire.Codec) error {
	engine := storage.NewEngine(cfg.Storage.Address)
	registry := subscription.NewRegistry()

	customersHeader := rel.NewHeader("customers", "id", "active")
	ordersHeader := rel.NewHeader("orders", "id", "customer_id")

	customersID, err := engine.CreateTable(customersHeader)
	if err != nil {
		return err
	}
	ordersID, err := engine.CreateTable(ordersHeader)
	if err != nil {
		return err
	}
	if err := engine.CreateIndex(customersID, "id"); err != nil {
		return err
	}

	selectExpr := vm.QueryExpr{
		Source: rel.NewDbSource(ordersID, ordersHeader),
		Ops:    []vm.Op{vm.Filter("customer_id", vm.Eq, 3)},
	}
	selectQuery, err := query.Classify(selectExpr)
	if err != nil {
		return err
	}
	if _, err := registry.Subscribe(selectQuery, hash.OfString("select orders where customer_id = 3")); err != nil {
		return err
	}

	joinExpr := vm.QueryExpr{
		Join: &vm.IndexJoin{
			IndexSide:       rel.NewDbSource(customersID, customersHeader),
			IndexSideColumn: "id",
			IndexSideFilter: &vm.Predicate{Column: "active", Op: vm.Eq, Value: true},
			ProbeSide:       rel.NewDbSource(ordersID, ordersHeader),
			ProbeSideColumn: "customer_id",
			ReturnProbeSide: true,
		},
	}
	joinQuery, err := query.Classify(joinExpr)
	if err != nil {
		return err
	}
	if _, err := registry.Subscribe(joinQuery, hash.OfString("select orders joined to active customers")); err != nil {
		return err
	}

	log.Info("subscribed units", zap.Int("count", registry.Len()))

	customersUpdate, err := engine.Commit(ctx, customersID, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(int64(3), true)},
	})
	if err != nil {
		return err
	}
	if err := dispatchAndPrint(ctx, engine, registry, codec, customersUpdate); err != nil {
		return err
	}

	ordersUpdate, err := engine.Commit(ctx, ordersID, []storage.TableOp{
		{OpType: storage.OpInsert, Row: rel.NewRow(int64(1), int64(3))},
	})
	if err != nil {
		return err
	}
	return dispatchAndPrint(ctx, engine, registry, codec, ordersUpdate)
}

func dispatchAndPrint(ctx context.Context, engine *storage.Engine, registry *subscription.Registry, codec wire.Codec, update storage.DatabaseTableUpdate) error {
	tx, err := engine.Begin(ctx)
	if err != nil {
		return err
	}
	deltas, err := registry.Dispatch(ctx, engine, tx, []storage.DatabaseTableUpdate{update}, authctx.Anonymous)
	if err != nil {
		return err
	}
	if len(deltas) == 0 {
		fmt.Printf("commit on %q affected no subscriber\n", update.TableName)
		return nil
	}
	for h, delta := range deltas {
		encoded, err := codec.Encode(*delta)
		if err != nil {
			return err
		}
		fmt.Printf("subscriber %s: %d ops, %d bytes on the wire (%s)\n", h, len(delta.Ops), len(encoded), codec.Name())
	}
	return nil
}
