// Package serve implements the acsd "serve" subcommand: it loads
// configuration and the tenants.yaml bootstrap descriptor, brings up
// the tenant supervisor (C8), and exposes it through the RPC edge (C9)
// until interrupted. Grounded on the teacher's cmd/mpe/subcommands/serve,
// generalized from a single decision-point server to a multi-tenant
// supervisor plus its HTTP edge.
package serve

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/lattice-acs/acs/internal/logging"
	"github.com/lattice-acs/acs/pkg/core/config"
	"github.com/lattice-acs/acs/pkg/persistence"
	"github.com/lattice-acs/acs/pkg/rpc"
	"github.com/lattice-acs/acs/pkg/supervisor"
)

var logger = logging.GetLogger("acsd")

const agent string = "serve"

func openStore(driver, dsn string) (persistence.Store, error) {
	store, err := persistence.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := persistence.NewMigrator(store.DB(), driver).Init(context.Background()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Execute runs the serve command: load tenants, start the supervisor,
// serve the RPC edge, and block until an interrupt signal arrives.
func Execute(ctx context.Context, cmd *cli.Command) error {
	if err := config.Load(); err != nil {
		return err
	}

	tenantsPath := config.VConfig.GetString(config.TenantsFile)
	if p := cmd.String("tenants"); p != "" {
		tenantsPath = p
	}
	tenants, err := supervisor.LoadTenants(tenantsPath)
	if err != nil {
		return err
	}

	sup := supervisor.New(openStore)
	bufferCapacity := config.VConfig.GetInt(config.BufferCapacity)
	highPct := config.VConfig.GetFloat64(config.BufferHighWatermark)
	lowPct := config.VConfig.GetFloat64(config.BufferLowWatermark)

	if err := sup.Start(ctx, tenants, bufferCapacity, highPct, lowPct); err != nil {
		return err
	}

	healthCtx, cancelHealth := context.WithCancel(ctx)
	defer cancelHealth()
	go sup.RunHealthChecks(healthCtx, 30*time.Second)

	rpcCfg := rpc.Config{
		Addr:              cmd.String("addr"),
		CommandDeadline:   time.Duration(config.VConfig.GetInt(config.CommandDeadlineMs)) * time.Millisecond,
		QueryDeadline:     time.Duration(config.VConfig.GetInt(config.QueryDeadlineMs)) * time.Millisecond,
		IdempotencyWindow: time.Duration(config.VConfig.GetInt(config.IdempotencyWindowSec)) * time.Second,
		AuditStreamPoll:   time.Second,
	}
	server := rpc.NewServer(sup, rpcCfg)
	if err := server.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	logger.Info(agent, "shutdown", "shutting down access control service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Errorf(agent, "shutdown", "rpc edge shutdown error: %+v", err)
	}

	cancelHealth()
	sup.Stop()

	logger.Info(agent, "shutdown", "access control service exited gracefully")
	return nil
}
