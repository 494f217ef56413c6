package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sessionkeeper/config"
	"sessionkeeper/internal/app"
	"sessionkeeper/internal/backend"
	"sessionkeeper/internal/settings"
	"syscall"
)

const defaultConfigPath = "config.json"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	email := flag.String("email", "", "Log in (or register) with this email")
	password := flag.String("password", os.Getenv("SESSIONKEEPER_PASSWORD"), "Password for -email")
	register := flag.Bool("register", false, "Register a new account instead of logging in")
	firstname := flag.String("firstname", "", "First name for -register")
	lastname := flag.String("lastname", "", "Last name for -register")
	get := flag.String("get", "", "Send an authenticated GET to this URL and print the body")
	logout := flag.Bool("logout", false, "End this session")
	logoutAll := flag.Bool("logout-all", false, "End every session of the account")
	showSettings := flag.Bool("settings", false, "Print the resolved display settings")
	watch := flag.Bool("watch", false, "Keep the session alive until interrupted")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error

	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}

	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := a.Start(ctx)
	a.Logger.Info("Session initialized", "state", state)

	if *email != "" {
		if err := authenticate(ctx, a, *register, backend.RegisterRequest{
			Firstname: *firstname,
			Lastname:  *lastname,
			Email:     *email,
			Password:  *password,
		}); err != nil {
			return err
		}
	}

	if *showSettings {
		applied := settings.Resolve(a.Settings.Load(ctx), false)
		fmt.Printf("theme=%s font-size=%s\n", applied.Theme, applied.FontSize)
	}

	if *get != "" {
		if err := fetch(ctx, a, *get); err != nil {
			return err
		}
	}

	switch {
	case *logoutAll:
		a.Manager.LogoutAllSessions(ctx)
	case *logout:
		a.Manager.Logout(ctx)
	case *watch:
		if !a.Manager.IsAuthenticated() {
			return errors.New("not authenticated, nothing to watch")
		}
		a.Logger.Info("Keeping session alive until interrupted")
		<-ctx.Done()
	}

	a.Logger.Info("Done", "state", a.Manager.State())
	return nil
}

func authenticate(ctx context.Context, a *app.App, register bool, req backend.RegisterRequest) error {
	var token string
	var err error
	if register {
		token, err = a.Backend.Register(ctx, req)
	} else {
		token, err = a.Backend.Login(ctx, req.Email, req.Password)
	}
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	return a.Manager.Login(ctx, token)
}

func fetch(ctx context.Context, a *app.App, url string) error {
	resp, err := a.Client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	a.Logger.Info("Response received", "url", url, "status", resp.StatusCode)
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	fmt.Println()
	return nil
}
