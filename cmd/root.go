package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-postsync/core/config"
	"github.com/AzielCF/az-postsync/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	appConfig *coreconfig.Config
	postsync  *application
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "postsync",
	Short: "Publish scheduled posts from a shared schedule document",
	Long: `postsync reconciles a schedule document against a social media account:
every slot whose time has come is claimed, published and written back, so
the document always tells the truth about what went out.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig, initApp)
}

func initFlags() {
	rootCmd.PersistentFlags().StringP(
		"port", "p", "",
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolP(
		"debug", "d", false,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().String(
		"store", "",
		`schedule store backend --store <file|http|valkey|sql> | example: --store=http`,
	)

	_ = viper.BindPFlag("app_port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("app_debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("store_backend", rootCmd.PersistentFlags().Lookup("store"))
}

// initEnvConfig loads configuration from the environment and applies flag overrides.
func initEnvConfig() {
	// flags win over the environment
	if v := viper.GetString("store_backend"); v != "" {
		_ = os.Setenv("STORE_BACKEND", v)
	}

	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] Invalid configuration: %v", err)
	}
	if envPort := viper.GetString("app_port"); envPort != "" {
		cfg.App.Port = envPort
	}
	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	appConfig = cfg
}

func initApp() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if appConfig.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	serverID := utils.ResolveServerID(appConfig.App.ServerID, appConfig.App.StorageDir)

	app, err := buildApp(context.Background(), appConfig, serverID)
	if err != nil {
		logrus.Fatalf("[APP] Failed to initialize: %v", err)
	}
	postsync = app
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	StopApp()
	if err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of all connections.
func StopApp() {
	if postsync == nil {
		return
	}
	logrus.Info("[APP] Stopping application...")
	postsync.Close()
	postsync = nil
	logrus.Info("[APP] Application stopped cleanly.")
}
