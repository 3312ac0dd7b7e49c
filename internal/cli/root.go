package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/obstools/camd/internal"
	"github.com/obstools/camd/internal/paths"
	"github.com/obstools/camd/internal/server"
)

// Represents the root command for the camd daemon.
var RootCmd struct {
	Quiet   bool       `short:"q" help:"Suppress informational output."`
	Verbose bool       `short:"v" help:"Enable verbose output."`
	Debug   bool       `short:"d" help:"Enable debug output."`
	Port    int        `short:"p" env:"CAMD_PORT" help:"Override the default command port." placeholder:"PORT"`
	Broker  string     `short:"b" env:"CAMD_BROKER" help:"Site registry broker URL. Empty disables the registry." placeholder:"URL"`
	Camera  string     `short:"c" env:"CAMD_CAMERA" default:"webcam" help:"Camera backend (webcam)." placeholder:"NAME"`
	Spool   string     `env:"CAMD_SPOOL" help:"Override the default image spool path." placeholder:"PATH"`
	Start   StartCmd   `cmd:"" help:"Start the daemon."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
//
// Environment files are loaded before parsing so the env-tagged flags see
// their values; explicit command-line flags still win.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loadEnv()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("The camera acquisition daemon.\n\nListens on a TCP port for exposure commands and streams images back."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Loads environment files, site file first so a local .env can override it.
// Missing files are not an error.
func loadEnv() {
	godotenv.Load(paths.EnvFile())
	godotenv.Load()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: RootCmd.Verbose || internal.IsVerbose(),
	})

	slog.SetDefault(slog.New(handler).WithGroup(internal.Name))
}

// Returns the effective command port.
func port() int {
	if RootCmd.Port != 0 {
		return RootCmd.Port
	}
	return server.DefaultPort
}
