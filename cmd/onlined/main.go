// Online network data service.
// Polls the configured online flying network (VATSIM, IVAO or a custom
// whazzup source), stores clients and servers in PostgreSQL and serves
// them over a REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/QQ7ita/littlenavmap/internal/auth"
	"github.com/QQ7ita/littlenavmap/internal/db"
	"github.com/QQ7ita/littlenavmap/internal/sim"
	"github.com/QQ7ita/littlenavmap/pkg/config"
	"github.com/QQ7ita/littlenavmap/pkg/download"
	"github.com/QQ7ita/littlenavmap/pkg/online"
	"github.com/QQ7ita/littlenavmap/pkg/whazzup"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	port       = flag.String("port", "", "HTTP server port (overrides config)")
)

func main() {
	flag.Parse()

	log.Println("Starting online data service...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	networks := config.DefaultNetworks()
	if cfg.Online.NetworksFile != "" {
		networks, err = config.LoadNetworks(cfg.Online.NetworksFile)
		if err != nil {
			log.Fatalf("Failed to load networks file: %v", err)
		}
	}

	opts, err := resolveOptions(cfg.Online, networks)
	if err != nil {
		log.Fatalf("Invalid online configuration: %v", err)
	}

	database, err := db.ConnectWithRetry(cfg.Database, 10, time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	log.Println("Database schema initialized")

	authSvc := auth.NewService(auth.Config{
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenDuration: time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute,
		Users:         cfg.Auth.Users,
	})

	mgr := db.NewManager(database)
	feed := sim.NewFeed()
	dl := download.New()

	ctl := online.NewController(mgr, dl, feed, &consoleDialogs{}, opts, online.DefaultTuning())
	dl.OnFinished = ctl.FetchSucceeded
	dl.OnFailed = ctl.FetchFailed
	ctl.SetListeners(online.Listeners{
		ClientsUpdated: func(loadAll, keepSelection bool) {
			log.Println("online: client data updated")
		},
		ServersUpdated: func(loadAll, keepSelection bool) {
			log.Println("online: server data updated")
		},
		NetworkChanged: func() {
			log.Printf("online: network changed to %q", ctl.Network())
		},
	})

	srv := newServer(cfg, database, authSvc, ctl, feed)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ctl.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return srv.run(ctx)
	})

	ctl.Start()
	if opts.Network != online.NetworkNone {
		log.Printf("Polling %s data", opts.Network)
	} else {
		log.Println("No online network configured, polling disabled")
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("Service error: %v", err)
	}
	log.Println("Service exited")
}

// resolveOptions maps the configuration onto an immutable controller
// options snapshot. Predefined networks take their status URL, format
// and reload override from the networks file; custom networks use the
// operator-supplied URLs and reload interval directly.
func resolveOptions(oc config.OnlineConfig, networks *config.Networks) (online.Options, error) {
	opts := online.Options{
		ReloadSeconds:         oc.ReloadSeconds,
		ReloadOverrideSeconds: -1,
		DisableUserAgent:      oc.NoUserAgent,
	}

	switch oc.Network {
	case "", "none":
		opts.Network = online.NetworkNone
		return opts, nil
	case "vatsim", "ivao":
		entry, ok := networks.Get(oc.Network)
		if !ok {
			return opts, fmt.Errorf("network %q not found in networks file", oc.Network)
		}
		if oc.Network == "vatsim" {
			opts.Network = online.NetworkVATSIM
		} else {
			opts.Network = online.NetworkIVAO
		}
		opts.StatusURL = entry.StatusURL
		opts.Format = whazzup.ParseFormat(entry.Format)
		opts.ReloadOverrideSeconds = entry.ReloadSeconds
		return opts, nil
	case "custom":
		if oc.WhazzupURL == "" {
			return opts, fmt.Errorf("custom network requires whazzup_url")
		}
		opts.Network = online.NetworkCustom
		opts.WhazzupURL = oc.WhazzupURL
		opts.Format = whazzup.ParseFormat(oc.Format)
		return opts, nil
	case "custom-status":
		if oc.StatusURL == "" {
			return opts, fmt.Errorf("custom-status network requires status_url")
		}
		opts.Network = online.NetworkCustomStatus
		opts.StatusURL = oc.StatusURL
		opts.Format = whazzup.ParseFormat(oc.Format)
		return opts, nil
	}
	return opts, fmt.Errorf("unknown network %q", oc.Network)
}

// consoleDialogs satisfies the controller's user interaction surface
// for a headless service. A failed download is logged and acknowledged
// after a hold-off so the restart loop cannot spin.
type consoleDialogs struct{}

const retryHoldOff = 30 * time.Second

func (consoleDialogs) ConfirmRetry(url string, err error) {
	log.Printf("online: download of %s failed: %v, retrying in %s", url, err, retryHoldOff)
	time.Sleep(retryHoldOff)
}

func (consoleDialogs) ShowMessage(text string) {
	log.Printf("online: network message: %s", text)
}
