package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	config "spacetimekv/cmd/config"
	"spacetimekv/internal/dag"
	"spacetimekv/internal/gate"
	"spacetimekv/internal/httpapi"
	"spacetimekv/internal/replica"
	"spacetimekv/internal/spacetime"
	"spacetimekv/internal/transport"
)

var runEnv string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a spacetimekv replica",
	RunE:  runReplica,
}

func init() {
	runCmd.Flags().StringVar(&runEnv, "env", "", "configuration environment overlay (config/<env>.yaml)")
}

func runReplica(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	config.LoadConfig(runEnv)
	cfg := &config.AppConfig

	lv, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log := logrus.New()
	log.SetLevel(lv)

	spacetime.CSet(cfg.Physics.SpeedOfLight)
	tickInterval, err := time.ParseDuration(cfg.Physics.GateTickInterval)
	if err != nil {
		tickInterval = 50 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := transport.New(ctx, transport.Config{
		ListenAddr:     cfg.Network.ListenAddr,
		BootstrapPeers: cfg.Network.BootstrapPeers,
		DiscoveryTag:   cfg.Network.DiscoveryTag,
	}, log)
	if err != nil {
		return fmt.Errorf("spacetimed: start transport: %w", err)
	}
	defer node.Close()

	d := dag.New(log)
	g := gate.New(log, clock.New())
	r := replica.New(replica.Config{
		SelfCoord: spacetime.Coord{
			X: cfg.SelfCoords.X,
			Y: cfg.SelfCoords.Y,
			Z: cfg.SelfCoords.Z,
		},
		Peers:            cfg.Peers,
		GateTickInterval: tickInterval,
	}, d, g, node, clock.New(), log)

	go r.Run(ctx)
	go pumpInbound(ctx, node, r, log)

	server := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: httpapi.NewRouter(r, log)}
	go func() {
		log.Infof("spacetimed: http inspection api listening on %s", cfg.HTTP.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("spacetimed: http server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("spacetimed: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// pumpInbound forwards every message the transport receives into the
// replica's ingestion path, where the physics gate withholds it until its
// light-cone deadline.
func pumpInbound(ctx context.Context, node *transport.Node, r *replica.Replica, log *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-node.Messages():
			if !ok {
				return
			}
			r.Ingest(msg)
		}
	}
}
