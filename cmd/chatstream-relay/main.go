package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"chatstream/internal/backend"
	"chatstream/internal/config"
	"chatstream/internal/relay"
	"chatstream/internal/telemetry"
)

func main() {
	cfg, err := parseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs resolves the effective config: defaults, then the config file if
// one is given, then any flags set on the command line on top.
func parseArgs(fs *flag.FlagSet, args []string) (config.Config, error) {
	cfg := config.Default()

	configPath := fs.String("config", "", "Path to YAML config file")
	listenAddr := fs.String("addr", cfg.ListenAddr, "Listen address")
	responder := fs.String("responder", cfg.Responder, "Chat responder (echo|ollama)")
	ollamaURL := fs.String("ollama-url", cfg.OllamaURL, "Ollama server URL")
	ollamaModel := fs.String("ollama-model", cfg.OllamaModel, "Ollama model specification (format: model:version)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.ListenAddr = *listenAddr
		case "responder":
			cfg.Responder = *responder
		case "ollama-url":
			cfg.OllamaURL = *ollamaURL
		case "ollama-model":
			cfg.OllamaModel = *ollamaModel
		case "debug":
			cfg.Debug = *debug
		}
	})
	return cfg, nil
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := telemetry.InitLogger(cfg.LogDir, "chatstream-relay", cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	_, _, cleanup, err := telemetry.InitTelemetry(context.Background(), cfg.LogDir, "chatstream-relay")
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	var responder relay.Responder
	switch cfg.Responder {
	case config.ResponderOllama:
		responder = backend.NewOllamaResponder(cfg.OllamaURL, cfg.OllamaModel, logger)
	default:
		responder = relay.EchoResponder{}
	}

	srv := relay.New(logger, responder)

	logger.Info("relay listening", "addr", cfg.ListenAddr, "responder", cfg.Responder)
	fmt.Printf("WebSocket server running on %s\n", cfg.ListenAddr)

	// A listener-level failure is fatal; restart policy lives outside the
	// process.
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Routes()); err != nil {
		logger.Error("server error", "error", err)
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
