package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"portalgate/internal/config"
	"portalgate/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	printSettings := flag.Bool("settings", false, "print the supported settings and exit")
	flag.Parse()

	if *printSettings {
		writeSettings()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Println("Shutting down gracefully...")
	case err := <-errCh:
		fmt.Printf("Server error: %v\n", err)
	}

	if err := srv.Stop(context.Background()); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	fmt.Println("Server stopped successfully")
}

func writeSettings() {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VARIABLE\tTYPE\tDEFAULT\tDESCRIPTION")
	for _, s := range config.Settings {
		fmt.Fprintf(w, "%s_%s\t%s\t%v\t%s\n", config.EnvPrefix, s.Name, s.Type, s.Default, s.Short)
	}
	_ = w.Flush()
}
