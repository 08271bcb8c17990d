/*
Copyright 2026-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/couchbaselabs/cbrouting/cbbucket"
	"github.com/couchbaselabs/cbrouting/cbconfig"
	"github.com/couchbaselabs/cbrouting/cbtopology"
	"github.com/couchbaselabs/cbrouting/pkg/webapi"
	"github.com/couchbaselabs/cbrouting/routing"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:   "cbrouting",
	Short: "Watches a bucket's topology and exposes its routing state",

	Run: func(cmd *cobra.Command, args []string) {
		startWatcher()
	},
}

var cfgFile string
var watchCfgFile bool

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "specifies a config file to load")
	rootCmd.Flags().BoolVar(&watchCfgFile, "watch-config", false, "indicates whether to watch the config file for changes")

	configFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	configFlags.String("log-level", "info", "the log level to run at")
	configFlags.String("cb-host", "http://localhost:8091", "the couchbase server host")
	configFlags.String("cb-user", "Administrator", "the couchbase server username")
	configFlags.String("cb-pass", "password", "the couchbase server password")
	configFlags.String("bucket", "default", "the bucket to watch")
	configFlags.String("bind-address", "0.0.0.0", "the local address to bind to")
	configFlags.Int("web-port", 9091, "the web metrics/topology port")
	configFlags.Duration("poll-interval", 2500*time.Millisecond, "how often to poll for new configs")
	rootCmd.Flags().AddFlagSet(configFlags)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.SetEnvPrefix("cbr")
	viper.AutomaticEnv()

	_ = viper.BindPFlags(configFlags)
}

func getLogger() (zap.AtomicLevel, *zap.Logger) {
	logLevel := zap.NewAtomicLevel()
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(logConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stdout), logLevel),
	)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logLevel, logger
}

type config struct {
	logLevelStr  string
	cbHost       string
	cbUser       string
	cbPass       string
	bucket       string
	bindAddress  string
	webPort      int
	pollInterval time.Duration
}

func readConfig(logger *zap.Logger) *config {
	config := &config{
		logLevelStr:  viper.GetString("log-level"),
		cbHost:       viper.GetString("cb-host"),
		cbUser:       viper.GetString("cb-user"),
		cbPass:       viper.GetString("cb-pass"),
		bucket:       viper.GetString("bucket"),
		bindAddress:  viper.GetString("bind-address"),
		webPort:      viper.GetInt("web-port"),
		pollInterval: viper.GetDuration("poll-interval"),
	}

	logger.Info("parsed watcher configuration",
		zap.String("logLevelStr", config.logLevelStr),
		zap.String("cbHost", config.cbHost),
		zap.String("cbUser", config.cbUser),
		// zap.String("cbPass", config.cbPass),
		zap.String("bucket", config.bucket),
		zap.String("bindAddress", config.bindAddress),
		zap.Int("webPort", config.webPort),
		zap.Duration("pollInterval", config.pollInterval))

	return config
}

func applyLogLevel(logLevel zap.AtomicLevel, logger *zap.Logger, logLevelStr string) {
	parsedLogLevel, err := zapcore.ParseLevel(logLevelStr)
	if err != nil {
		logger.Warn("invalid log level specified, using INFO instead")
		parsedLogLevel = zapcore.InfoLevel
	}
	logLevel.SetLevel(parsedLogLevel)
}

func startWatcher() {
	logLevel, logger := getLogger()

	logger.Info("starting cbrouting")

	logger.Info("parsed launch configuration",
		zap.String("config", cfgFile),
		zap.Bool("watch-config", watchCfgFile))

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		err := viper.ReadInConfig()
		if err != nil {
			logger.Panic("failed to load specified config file", zap.Error(err))
		}

		if watchCfgFile {
			viper.OnConfigChange(func(in fsnotify.Event) {
				logger.Info("config file changed, reapplying log level",
					zap.String("file", in.Name))
				applyLogLevel(logLevel, logger, viper.GetString("log-level"))
			})
			viper.WatchConfig()
		}
	}

	config := readConfig(logger)
	applyLogLevel(logLevel, logger, config.logLevelStr)

	router := routing.NewRouter(routing.RouterOptions{
		Logger: logger.Named("router"),
	})

	webListenAddress := fmt.Sprintf("%s:%v", config.bindAddress, config.webPort)
	webapi.InitializeWebServer(webapi.WebServerOptions{
		Logger:        logger.Named("webapi"),
		LogLevel:      &logLevel,
		ListenAddress: webListenAddress,
		Router:        router,
	})

	fetcher := cbconfig.NewFetcher(cbconfig.FetcherOptions{
		Host:     config.cbHost,
		Username: config.cbUser,
		Password: config.cbPass,
		Logger:   logger.Named("fetcher"),
	})

	provider, err := cbtopology.NewPollingProvider(cbtopology.PollingProviderOptions{
		Fetcher:      fetcher,
		Logger:       logger.Named("topology"),
		PollInterval: config.pollInterval,
	})
	if err != nil {
		logger.Error("failed to create topology provider", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configCh, err := provider.WatchBucket(ctx, config.bucket)
	if err != nil {
		logger.Error("failed to watch bucket topology", zap.Error(err))
		os.Exit(1)
	}

	for bucketConfig := range configCh {
		switch bucketConfig := bucketConfig.(type) {
		case *cbbucket.CouchbaseBucketConfig:
			router.ApplyConfig(bucketConfig)
		default:
			logger.Warn("bucket does not use vbucket routing, ignoring config",
				zap.String("bucketType", string(bucketConfig.BucketType())))
		}
	}

	logger.Info("topology watch ended, shutting down")
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
