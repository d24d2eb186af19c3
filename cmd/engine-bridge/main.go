// ABOUTME: Entry point for engine-bridge
// ABOUTME: Serves the bridge API and provides client subcommands for a running bridge

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/engine-bridge/internal/auth"
	"github.com/2389/engine-bridge/internal/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
                  _                  _          _     _
  ___ _ __   __ _(_)_ __   ___      | |__  _ __(_) __| | __ _  ___
 / _ \ '_ \ / _' | | '_ \ / _ \_____| '_ \| '__| |/ _' |/ _' |/ _ \
|  __/ | | | (_| | | | | |  __/_____| |_) | |  | | (_| | (_| |  __/
 \___|_| |_|\__, |_|_| |_|\___|     |_.__/|_|  |_|\__,_|\__, |\___|
            |___/                                       |___/
`

func usage() {
	fmt.Println("Usage: engine-bridge <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Start the bridge server")
	fmt.Println("  init                           Write a default config file")
	fmt.Println("  health                         Check bridge health")
	fmt.Println("  status                         Show engine, LLM, and recent history")
	fmt.Println("  models                         List models on the LLM backend")
	fmt.Println("  send <command> [json-params]   Send a command to the engine")
	fmt.Println("  token --sub NAME               Print an API token")
	fmt.Println("  version                        Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args)
	case "health":
		err = runHealth(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "models":
		err = runModels(ctx, args)
	case "send":
		err = runSend(ctx, args)
	case "token":
		err = runToken(args)
	case "version":
		fmt.Println(version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file path")
	addr := fs.String("addr", "", "HTTP listen address (overrides server.http_addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, path, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *addr != "" {
		cfg.Server.HTTPAddr = *addr
	}

	logger := setupLogger(cfg.Logging)

	if path == "" {
		path = "(defaults)"
	}
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Engine:  %s", cfg.Engine.DefaultURL)
	if cfg.Engine.Handshake.Enabled {
		gray.Printf(" (handshake v%s)", cfg.Engine.Handshake.Protocol)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Ollama:  %s ", cfg.Ollama.BaseURL)
	cyan.Println(cfg.Ollama.DefaultModel)
	if cfg.History.DatabasePath != "" {
		green.Print("    ▶ ")
		fmt.Printf("History: %s\n", cfg.History.DatabasePath)
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! API authentication disabled")
	}
	fmt.Println()

	logger.Info("starting engine-bridge",
		"config", path,
		"http_addr", cfg.Server.HTTPAddr,
		"engine_url", cfg.Engine.DefaultURL,
		"ollama_url", cfg.Ollama.BaseURL,
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

func runInit(args []string) error {
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "where to write the config file")
	force := fs.BoolP("force", "f", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, _ := config.ResolvePath(*configPath)
	if err := config.WriteTemplate(path, *force); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Config written to %s\n", path)
	fmt.Println()
	fmt.Println("To start the bridge:")
	fmt.Println("  engine-bridge serve")
	return nil
}

func runToken(args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file path")
	subject := fs.String("sub", "", "client name stored in the token")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("--sub flag is required")
	}

	cfg, path, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not set in %s", path)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(*subject, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}
