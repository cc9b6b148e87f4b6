package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hospital-queue/internal/adapters/persistence/models"
	"hospital-queue/internal/bootstrap"
	"hospital-queue/internal/config"
	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/core/triage"
	"hospital-queue/internal/pkg/jwt"

	_ "hospital-queue/docs" // Swagger docs
)

// @title Hospital Queue API
// @version 1.0
// @description Token queue, emergency lane and symptom triage for hospital departments.

// @contact.name API Support
// @contact.email support@hospital-queue.local

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "hospital-queue",
		Short: "Hospital queue and triage API",
		// errors are logged by the commands themselves
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(triageCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, log)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the MySQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := config.ConnectDatabase(cfg)
			if err != nil {
				return err
			}
			defer config.CloseDatabase()

			if err := models.AutoMigrate(db); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			log.Info().Msg("database migration completed")

			seed, _ := cmd.Flags().GetBool("seed")
			if seed {
				if err := config.SeedQueueData(db); err != nil {
					return fmt.Errorf("seed: %w", err)
				}
				log.Info().Msg("queue data seeded")
			}
			return nil
		},
	}
	cmd.Flags().Bool("seed", false, "Seed hospitals and departments after migrating")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed hospitals and departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := config.ConnectDatabase(cfg)
			if err != nil {
				return err
			}
			defer config.CloseDatabase()

			if err := config.SeedQueueData(db); err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			log.Info().Msg("queue data seeded")
			return nil
		},
	}
}

func triageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triage [symptoms]",
		Short: "Classify symptoms with the rule engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := triage.NewDefaultClassifier().Classify(strings.Join(args, " "))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a staff or admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			userID, _ := cmd.Flags().GetUint("user-id")
			roleName, _ := cmd.Flags().GetString("role")

			role := domain.Role(strings.ToUpper(roleName))
			if role != domain.RoleStaff && role != domain.RoleAdmin {
				return fmt.Errorf("role must be staff or admin, got %q", roleName)
			}

			tok, err := jwt.GenerateAccessToken(userID, "", string(role), cfg.JWT.Secret, cfg.JWT.AccessTokenMins)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Uint("user-id", 1, "Account id carried in the token")
	cmd.Flags().String("role", "staff", "staff or admin")
	return cmd
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load configuration: %w", err)
	}
	return cfg, config.InitLogger(cfg.AppMode, cfg.LogLevel), nil
}

func runServer(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stores bootstrap.Stores
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on restart")
		stores = bootstrap.MemoryStores()
	default:
		db, err := config.ConnectDatabase(cfg)
		if err != nil {
			return err
		}
		defer config.CloseDatabase()

		if err := models.AutoMigrate(db); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := config.SeedQueueData(db); err != nil {
			log.Warn().Err(err).Msg("failed to seed queue data")
		}
		stores = bootstrap.MySQLStores(db)
	}

	app, err := bootstrap.New(ctx, cfg, stores, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Auto.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("mode", cfg.AppMode).Msg("server starting")
		return app.Fiber.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.Auto.Stop(stopCtx)
		return app.Fiber.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return err
	}
	log.Info().Msg("server stopped gracefully")
	return nil
}
