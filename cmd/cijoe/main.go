package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/haatos/cijoe/internal"
	"github.com/haatos/cijoe/internal/handler"
	"github.com/haatos/cijoe/internal/service"
	"github.com/haatos/cijoe/internal/settings"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
)

var appSettings *settings.AppSettings

var rootCmd = &cobra.Command{
	Use:   "cijoe [project path]",
	Short: "cijoe - continuous integration for a single git project",
	Long: `cijoe fetches and resets the project's working copy, runs the configured
test command and serves the result over HTTP.

Builds are triggered by push webhooks (POST /), the rebuild button, an
optional cron schedule or the build subcommand. Project settings live in
.git/config.json inside the project and are created on first start.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings.ReadDotenv(internal.DotEnvPath)
		appSettings = settings.NewSettings()
		if len(args) == 1 {
			appSettings.ProjectPath = args[0]
		}
		return applyFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build [branch]",
	Short: "Run one build in the foreground and exit with its result",
	Args:  cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings.ReadDotenv(internal.DotEnvPath)
		appSettings = settings.NewSettings()
		return applyFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var branch string
		if len(args) == 1 {
			branch = args[0]
		}
		return buildOnce(cmd, branch)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().IntP("port", "p", 0, "port to listen on (default 4567)")
	rootCmd.PersistentFlags().StringP("host", "o", "", "host to bind to (default 0.0.0.0)")
	rootCmd.PersistentFlags().String("store", "", "build store: sqlite or file")
	rootCmd.PersistentFlags().StringP("project", "C", "", "project path")
	rootCmd.AddCommand(buildCmd)
}

func applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if port, _ := flags.GetInt("port"); port > 0 {
		appSettings.SetPort(port)
	}
	if host, _ := flags.GetString("host"); host != "" {
		appSettings.Host = host
	}
	if project, _ := flags.GetString("project"); project != "" {
		appSettings.ProjectPath = project
	}
	if storeKind, _ := flags.GetString("store"); storeKind != "" {
		appSettings.Store = storeKind
	}
	switch appSettings.Store {
	case settings.StoreSQLite, settings.StoreFile:
		return nil
	default:
		return fmt.Errorf("unknown store %q", appSettings.Store)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	ctx := context.Background()
	a, err := newApp(ctx, appSettings)
	if err != nil {
		return err
	}
	defer a.Close()

	a.joe.Restore(ctx)

	scheduler := service.NewScheduler()
	defer scheduler.Shutdown()
	if err := a.joe.ScheduleOrphanCheck(scheduler, appSettings.OrphanCheckInterval); err != nil {
		return err
	}
	if err := a.joe.ScheduleBuilds(scheduler, a.config.BuildSchedule); err != nil {
		return fmt.Errorf("invalid build_schedule %q: %w", a.config.BuildSchedule, err)
	}
	scheduler.Start()

	e := setupEcho()
	handler.SetupBuildRoutes(e, a.joe, a.events)

	log.Printf("serving %s/%s on %s\n", a.joe.User(), a.joe.Project(), appSettings.BaseURL())
	internal.GracefulShutdown(e, appSettings.Address(), a.joe.Shutdown)
	return nil
}

func buildOnce(cmd *cobra.Command, branch string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, appSettings)
	if err != nil {
		return err
	}
	defer a.Close()

	a.joe.Restore(ctx)
	if a.joe.Building() {
		return fmt.Errorf("a build of %s is already running", a.joe.CurrentBuild().Branch)
	}
	a.joe.RequestBuild(branch)
	a.joe.WaitForBuilds()

	last := a.joe.LastBuild()
	fmt.Fprintln(cmd.OutOrStdout(), last.CleanOutput())
	if !last.Worked() {
		return fmt.Errorf("build %s of %s failed", last.ShortSHA(), last.Branch)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "build %s of %s worked in %s\n", last.ShortSHA(), last.Branch, last.Duration())
	return nil
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.Recover(),
		middleware.Logger(),
		middleware.CORSWithConfig(internal.GetCORSConfig()),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	return e
}
