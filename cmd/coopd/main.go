// Command coopd serves the cooperative platform API and manages its schema.
//
// Usage:
//
//	coopd [serve]
//	coopd migrate up
//	coopd migrate down [N]
//	coopd migrate version
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coopenergy/platform/internal/app/runtime"
	"github.com/coopenergy/platform/internal/config"
	"github.com/coopenergy/platform/internal/platform/migrations"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "migrate":
		err = migrate(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("coopd %s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [serve | migrate up | migrate down [N] | migrate version]\n", os.Args[0])
	flag.PrintDefaults()
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication()
	if err != nil {
		return err
	}

	runErr := application.Run(ctx)
	if err := application.Shutdown(context.Background()); err != nil {
		log.Printf("shutdown: %v", err)
	}
	return runErr
}

func migrate(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dsn := cfg.Database.DSN
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(args) == 0 {
		return fmt.Errorf("missing migrate action (up, down, version)")
	}

	switch args[0] {
	case "up":
		if err := migrations.Up(dsn); err != nil {
			return err
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			steps, err = strconv.Atoi(args[1])
			if err != nil || steps < 1 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
		}
		if err := migrations.Down(dsn, steps); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}

	version, dirty, err := migrations.Version(dsn)
	if err != nil {
		return err
	}
	log.Printf("schema version %d (dirty=%t)", version, dirty)
	return nil
}
