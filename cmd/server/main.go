package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/crystal-mush/mushgames/pkg/archive"
	"github.com/crystal-mush/mushgames/pkg/boltstore"
	"github.com/crystal-mush/mushgames/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: mushgames [-conf <config.yaml>] [-db <store.bolt>] [-port 6250]")
	fmt.Fprintln(os.Stderr, "       mushgames -restore <archive.tar.gz> [-conf <config.yaml>] [-db <store.bolt>]")
	fmt.Fprintln(os.Stderr, "")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment variables (override the config file):")
	fmt.Fprintln(os.Stderr, "  ARENA_CONF                Path to game config file (.yaml)")
	fmt.Fprintln(os.Stderr, "  ARENA_NAME                Arena name")
	fmt.Fprintln(os.Stderr, "  ARENA_PORT                Telnet port")
	fmt.Fprintln(os.Stderr, "  ARENA_DB                  Path to the bbolt store")
	fmt.Fprintln(os.Stderr, "  ARENA_INVITATION_TIMEOUT  Seconds to answer an invitation")
	fmt.Fprintln(os.Stderr, "  ARENA_ACTION_TIMEOUT      Seconds to choose a simultaneous move")
	fmt.Fprintln(os.Stderr, "  ARENA_TURN_TIMEOUT        Seconds per turn")
	fmt.Fprintln(os.Stderr, "  ARENA_MAX_PARTICIPANTS    Most players in one game")
	fmt.Fprintln(os.Stderr, "  ARENA_BOTS                Comma-separated robot names")
	fmt.Fprintln(os.Stderr, "  ARENA_BACKUP_DIR          Directory for periodic archives")
	fmt.Fprintln(os.Stderr, "  ARENA_WEB                 Set to 'true' to enable the web server")
	fmt.Fprintln(os.Stderr, "  ARENA_WEB_PORT            Web server port")
	fmt.Fprintln(os.Stderr, "  ARENA_JWT_SECRET          Secret for signing web tokens")
	fmt.Fprintln(os.Stderr, "  ARENA_ADMIN               Set to 'true' to enable the admin API")
	fmt.Fprintln(os.Stderr, "  ARENA_ADMIN_PASS          Admin API password")
}

func main() {
	confFile := flag.String("conf", envDefault("ARENA_CONF", ""), "Path to game config file (env: ARENA_CONF)")
	dbPath := flag.String("db", "", "Path to the bbolt store, overrides config")
	port := flag.Int("port", 0, "Telnet port, overrides config")
	restore := flag.String("restore", "", "Restore this archive before booting")
	overwriteConf := flag.Bool("overwrite-conf", false, "Let -restore replace a different config file")
	negotiate := flag.Duration("negotiate", 500*time.Millisecond, "How long to wait for telnet GMCP negotiation (0 disables)")
	flag.Usage = usage
	flag.Parse()

	log.Printf("Welcome to %s", server.VersionString())

	gc := server.DefaultGameConf()
	if *confFile != "" {
		var err error
		gc, err = server.LoadGameConf(*confFile)
		if err != nil {
			log.Fatalf("Error loading game config: %v", err)
		}
		log.Printf("Loaded game config from %s", *confFile)
	}
	gc.ApplyEnv(os.Getenv)
	if *dbPath != "" {
		gc.DBPath = *dbPath
	}
	if *port != 0 {
		gc.Port = *port
	}
	if err := gc.Validate(); err != nil {
		log.Fatalf("Error in game config: %v", err)
	}
	if gc.WebEnabled && gc.JWTSecret == "" {
		gc.JWTSecret = server.GenerateJWTSecret()
		log.Printf("WARNING: jwt_secret not set, generated one; web tokens will not survive a restart")
	}

	if *restore != "" {
		log.Printf("Restoring from archive: %s", *restore)
		result, err := archive.Restore(archive.RestoreParams{
			ArchivePath:   *restore,
			StoreDest:     gc.DBPath,
			ConfDest:      *confFile,
			OverwriteConf: *overwriteConf,
		})
		if err != nil {
			log.Fatalf("Restore failed: %v", err)
		}
		log.Printf("Restore complete: %d files restored from %s (%d games on record)",
			result.FilesRestored, result.Manifest.Timestamp, result.Manifest.Records)
		for _, w := range result.Warnings {
			log.Printf("Restore warning: %s", w)
		}
	}

	if err := os.MkdirAll(filepath.Dir(gc.DBPath), 0755); err != nil {
		log.Fatalf("Error creating data directory: %v", err)
	}
	store, err := boltstore.Open(gc.DBPath)
	if err != nil {
		log.Fatalf("Error opening store: %v", err)
	}
	defer store.Close()

	lobby, err := store.LoadAll(gc.LobbyName)
	if err != nil {
		log.Fatalf("Error loading store: %v", err)
	}
	log.Printf("Store loaded from %s: %d objects", gc.DBPath, store.DB().Len())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	game := server.NewGame(store, lobby, gc)
	game.ConfPath = *confFile
	game.Start(ctx)
	game.SpawnBots(gc.Bots)

	if *confFile != "" {
		if err := server.WatchConf(ctx, *confFile, game.ApplyLimits); err != nil {
			log.Printf("WARNING: config changes will not be picked up: %v", err)
		}
	}

	cfg := server.DefaultConfig()
	cfg.Port = gc.Port
	cfg.IdleTimeout = time.Duration(gc.IdleTimeout) * time.Second
	cfg.NegotiateTimeout = *negotiate
	srv := server.NewServer(game, cfg)

	go func() {
		<-ctx.Done()
		log.Printf("Shutting down...")
		srv.Stop()
	}()

	log.Printf("Starting %s on port %d...", gc.MudName, cfg.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	game.Shutdown()
	cancel()
	log.Printf("Goodbye.")
}
