package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dbechrd/slimerrt/pkg/server"
	"github.com/dbechrd/slimerrt/pkg/telemetry"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		port     int
		host     string
		network  string
		maxPeers int
		admin    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Long: `Run the game server until interrupted.

Players are welcomed on their first packet, chat is relayed to
everyone and input is handed to the simulation. When an admin
address is configured, peers, chat, stats and Prometheus metrics
are served over HTTP. On shutdown the chat history is archived to
S3 if a bucket is configured.

Examples:
  slimerrt serve
  slimerrt serve --port=7777 --network=ws
  slimerrt serve --admin=""`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			// Apply command-line overrides
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if network != "" {
				cfg.Server.Network = network
			}
			if maxPeers > 0 {
				cfg.Server.MaxPeers = maxPeers
			}
			if cmd.Flags().Changed("admin") {
				cfg.Admin.Addr = admin
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			n, err := newNetwork(cfg, logger)
			if err != nil {
				return err
			}

			sc := server.DefaultConfig().
				WithNetwork(n).
				WithHost(cfg.Server.Host).
				WithMaxPeers(cfg.Server.MaxPeers).
				WithMotd(cfg.Server.Motd).
				WithArchiver(newArchiver(cfg, logger)).
				WithMetrics(telemetry.NewMetrics()).
				WithTracer(telemetry.NewTracer("slimerrt/server")).
				WithLogger(logger)
			sc.ChatHistory = cfg.Server.ChatHistory
			sc.WorldWidth = cfg.Server.World.Width
			sc.WorldHeight = cfg.Server.World.Height
			sc.Seed = cfg.Server.World.Seed
			sc.ArchiveTimeout = cfg.Archive.Timeout.Std()

			return runServe(server.New(sc), cfg.Server.Port, cfg.Admin.Addr)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from slimerrt.json)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Interface to bind (default from slimerrt.json)")
	cmd.Flags().StringVarP(&network, "network", "n", "", "Transport: udp or ws (default from slimerrt.json)")
	cmd.Flags().IntVar(&maxPeers, "max-peers", 0, "Maximum connected players (default from slimerrt.json)")
	cmd.Flags().StringVar(&admin, "admin", "", "Admin HTTP address, empty to disable (default from slimerrt.json)")

	return cmd
}

func runServe(srv *server.Server, port int, adminAddr string) error {
	if err := srv.OpenTransport(port); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printBanner()
	success("Listening on %s (%s)", srv.Addr(), srv.Config().Network.Name())
	info("Instance %s", srv.ID())

	listenCtx, cancelListen := context.WithCancel(context.Background())
	defer cancelListen()
	listenErr := make(chan error, 1)
	go func() { listenErr <- srv.Listen(listenCtx) }()

	adminErr := make(chan error, 1)
	if adminAddr != "" {
		hs := &http.Server{
			Addr:              adminAddr,
			Handler:           srv.AdminRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				adminErr <- fmt.Errorf("admin server: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hs.Shutdown(shutdownCtx)
		}()
		success("Admin on http://%s", adminAddr)
	}

	err := waitServe(ctx, listenErr, adminErr, cancelListen)

	fmt.Println("\n  Shutting down...")
	closeErr := srv.CloseSocket()
	if key := srv.LastArchive(); key != "" {
		success("Archived chat to %s", key)
	}
	return errors.Join(err, closeErr)
}

// waitServe blocks until a signal arrives, the listener exits or the admin
// server fails. Unless the listener itself exited, it stops the listener
// and waits for it.
func waitServe(ctx context.Context, listenErr, adminErr <-chan error, stopListen func()) error {
	var err error
	select {
	case err = <-listenErr:
		return err
	case <-ctx.Done():
	case err = <-adminErr:
	}
	stopListen()
	return errors.Join(err, <-listenErr)
}
