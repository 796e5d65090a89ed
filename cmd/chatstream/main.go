package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"chatstream/internal/chat"
	"chatstream/internal/config"
	"chatstream/internal/session"
	"chatstream/internal/store"
	"chatstream/internal/telemetry"
	"chatstream/internal/transport"
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
	serverURL := fs.String("server", cfg.ServerURL, "WebSocket server base URL")
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
		case "server":
			cfg.ServerURL = *serverURL
		case "debug":
			cfg.Debug = *debug
		}
	})
	return cfg, nil
}

func run(cfg config.Config) error {
	logger, err := telemetry.InitLogger(cfg.LogDir, "chatstream", cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	_, _, cleanup, err := telemetry.InitTelemetry(context.Background(), cfg.LogDir, "chatstream")
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	st := store.New(logger)
	tc := transport.New(cfg, logger)
	defer tc.Disconnect()

	// turn completion signal, one send at a time
	done := make(chan struct{}, 1)
	signal := func() {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	tc.OnConnect(func() { fmt.Println("[connected]") })
	tc.OnDisconnect(func() { fmt.Println("[disconnected]") })
	tc.OnReconnecting(func(r transport.Reconnecting) {
		fmt.Printf("[reconnecting %d/%d]\n", r.Attempt, r.Max)
	})
	tc.OnReconnectFailed(func(attempts int) {
		fmt.Printf("[gave up after %d reconnect attempts]\n", attempts)
	})
	tc.OnToken(func(content string) { fmt.Print(content) })
	tc.OnCompletion(func() {
		fmt.Println()
		signal()
	})

	ch := chat.New(tc, st, logger, chat.Callbacks{
		Error: func(message string) {
			fmt.Printf("\n[error] %s\n", message)
			signal()
		},
	})
	defer ch.Close()

	tc.Connect()

	fmt.Println("=== chatstream ===")
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := handleCommand(st, input)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			if quit {
				break
			}
			continue
		}

		// an error fired between turns leaves a stale signal behind
		drain(done)

		fmt.Print("Bot: ")
		if err := ch.SendMessage(input); err != nil {
			fmt.Printf("\nError: %v\n", err)
			continue
		}

		select {
		case <-done:
		case <-time.After(2 * time.Minute):
			fmt.Println("\n[timed out waiting for response]")
			st.ClearStream()
		}
		fmt.Println()
	}

	fmt.Println("Goodbye!")
	return nil
}

// drain discards a pending completion signal without blocking.
func drain(done chan struct{}) {
	select {
	case <-done:
	default:
	}
}

func handleCommand(st *store.Store, cmd string) (bool, error) {
	parts := strings.Fields(cmd)

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		id := st.CreateNewSession()
		fmt.Println("Started new session:", id)
		return false, nil

	case "/sessions":
		sessions := st.Sessions()
		if len(sessions) == 0 {
			fmt.Println("No sessions yet")
			return false, nil
		}
		current := st.CurrentSessionID()
		for _, sess := range sessions {
			marker := " "
			if sess.ID == current {
				marker = "*"
			}
			fmt.Printf("%s %s  %s\n", marker, sess.ID, sess.Title)
		}
		return false, nil

	case "/select":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /select <session-id>")
		}
		st.SetCurrentSession(parts[1])
		printHistory(st.Messages(parts[1]))
		return false, nil

	case "/delete":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /delete <session-id>")
		}
		st.DeleteSession(parts[1])
		fmt.Println("Deleted session:", parts[1])
		return false, nil

	case "/clear":
		st.ClearMessages()
		fmt.Println("Cleared all messages")
		return false, nil

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /quit, /exit          - Exit")
		fmt.Println("  /new                  - Start a new chat session")
		fmt.Println("  /sessions             - List sessions")
		fmt.Println("  /select <session-id>  - Switch to a session")
		fmt.Println("  /delete <session-id>  - Delete a session and its messages")
		fmt.Println("  /clear                - Clear all messages")
		fmt.Println("  /help                 - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}
}

func printHistory(messages []session.Message) {
	for _, msg := range messages {
		speaker := "Bot"
		if msg.IsUser {
			speaker = "You"
		}
		fmt.Printf("%s: %s\n", speaker, msg.Content)
	}
}
