package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"uiverify/internal/config"
	"uiverify/internal/govinfo"

	"github.com/spf13/cobra"
)

var (
	govinfoAddr     string
	govinfoUpstream string
)

var serveGovinfoCmd = &cobra.Command{
	Use:   "serve-govinfo",
	Short: "Serve the /api/govinfo and /api/congress bill title endpoints",
	Long: `Serves GET /api/govinfo?congress=&billType=&billNumber= the way the
front-end's backend does, looking titles up in GovInfo BILLSTATUS bulk data.
/api/congress takes the same parameters and asks the Congress.gov bill API.
Point the front-end (or a fixture) at it so the bill title scenarios have a
backend to talk to. /healthz and /metrics are served alongside.`,
	Args: cobra.NoArgs,
	RunE: serveGovinfo,
}

func init() {
	serveGovinfoCmd.Flags().StringVar(&govinfoAddr, "addr", "", "Listen address (overrides config)")
	serveGovinfoCmd.Flags().StringVar(&govinfoUpstream, "upstream", "", "GovInfo base URL (overrides config)")
}

func serveGovinfo(cmd *cobra.Command, args []string) error {
	addr := cfg.Govinfo.Addr
	if govinfoAddr != "" {
		addr = govinfoAddr
	}
	upstream := cfg.Govinfo.Upstream
	if govinfoUpstream != "" {
		upstream = govinfoUpstream
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Govinfo.CongressAPIKey == "" {
		logger.Warn("no Congress.gov API key set; /api/congress requests will be rejected upstream (set UIVERIFY_CONGRESS_API_KEY)")
	}
	return newTitleServer(cfg, upstream).ListenAndServe(ctx, addr)
}

// newTitleServer serves /api/govinfo from upstream and /api/congress from the
// configured Congress.gov API.
func newTitleServer(c *config.Config, upstream string) *govinfo.Server {
	timeout := c.GetGovinfoTimeout()
	congress := govinfo.NewCongressClient(c.Govinfo.CongressUpstream, c.Govinfo.CongressAPIKey, timeout)
	return govinfo.NewServer(govinfo.NewClient(upstream, timeout), govinfo.WithCongress(congress))
}
