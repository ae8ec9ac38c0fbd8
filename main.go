package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaliph/residence-companion/api"
	"github.com/jaliph/residence-companion/config"
	"github.com/jaliph/residence-companion/database"
	"github.com/jaliph/residence-companion/events"
	"github.com/jaliph/residence-companion/i18n"
	"github.com/jaliph/residence-companion/media"
	"github.com/jaliph/residence-companion/models"
	"github.com/jaliph/residence-companion/review"
	"github.com/jaliph/residence-companion/search"
	"github.com/jaliph/residence-companion/server"
	"github.com/jaliph/residence-companion/store"
	"github.com/jaliph/residence-companion/utils"
	"github.com/jaliph/residence-companion/wizard"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "companiond",
		Short:        "Residence companion registration service",
		SilenceUsage: true,
	}
	root.AddCommand(serveCommand(), maskCommand())
	return root
}

func serveCommand() *cobra.Command {
	var (
		configPath string
		noSeed     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the companion API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, !noSeed)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath, "Path to the ini config file")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "Start with empty companion and request lists")

	return cmd
}

func maskCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mask <identifier>...",
		Short: "Print identifiers the way companion cards show them",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for _, id := range args {
				fmt.Fprintln(cmd.OutOrStdout(), store.MaskIdentifier(id))
			}
		},
	}
}

func runServe(configPath string, seed bool) error {
	// Load configuration
	cfg := config.LoadConfig(configPath)
	utils.InitWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	captureMode, err := wizard.ParseCaptureMode(cfg.CaptureMode)
	if err != nil {
		return err
	}
	locale := i18n.Match(cfg.Locale)

	// Initialize the companion registry database
	gormDB, err := database.NewGormDB("companions", cfg.DBDebug)
	if err != nil {
		return fmt.Errorf("failed to initialize companion database: %w", err)
	}
	defer gormDB.Close()

	// Initialize the friend-request inbox database
	db, err := database.NewDatabase("inbox")
	if err != nil {
		return fmt.Errorf("failed to initialize inbox database: %w", err)
	}
	defer db.Close()

	bus := events.NewBus(cfg.AllowedOrigins)

	registry := store.NewRegistry(gormDB)
	registry.Attach(bus)
	defer registry.Detach()

	inbox := store.NewInbox(db, bus, store.InboxOptions{
		Locale:          locale,
		RemovalDelay:    cfg.RemovalDelay,
		RefreshInterval: cfg.RefreshInterval,
	})
	inbox.Attach()
	inbox.Start()
	defer inbox.Stop()

	if seed {
		if err := registry.Seed(store.SeedCompanions()); err != nil {
			return err
		}
		if err := inbox.Merge(store.SeedRequests(time.Now())); err != nil {
			return fmt.Errorf("failed to seed friend requests: %w", err)
		}
	}

	// Finished registrations land in the registry
	wizards := wizard.NewManager(
		review.NewMockService(cfg.SubmitLatency),
		media.NewSimulatedDevice(),
		cfg.SessionTTL,
		func(res models.RegistrationResult) {
			if _, err := registry.AddFromResult(res); err != nil {
				utils.Logger.Error("Failed to register companion", "name", res.Name, "error", err)
			}
		},
	)
	wizards.StartCleanup(cfg.CleanupInterval)
	defer wizards.Stop()

	handler := api.NewHandler(
		wizards,
		registry,
		inbox,
		search.NewService(registry, bus, cfg.SearchLatency),
		bus,
		wizard.Options{
			Locale:          locale,
			CaptureMode:     captureMode,
			RequireLiveness: cfg.RequireLiveness,
			CropDocument:    cfg.CropDocument,
			SuccessHold:     cfg.SuccessHold,
		},
	)

	// Start REST API server
	apiServer := server.NewServer(handler)
	errChan := make(chan error, 1)
	go func() {
		errChan <- apiServer.Start(cfg.APIPort)
	}()

	log.Printf("Residence companion server started successfully!")
	log.Printf("API server running on port %s", cfg.APIPort)
	log.Printf("Wizard endpoint: POST /wizard")
	log.Printf("Companions endpoint: GET /companions")
	log.Printf("Friend requests endpoint: GET /friend-requests")
	log.Printf("Search endpoint: POST /search")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
	}

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return apiServer.Shutdown(ctx)
}
