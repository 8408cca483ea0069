package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/jobs"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the batch screening HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "address to listen on (default :5000)")
	serveCmd.Flags().String("upload-dir", "", "directory for uploaded archives")
	serveCmd.Flags().String("frontend-url", "", "allowed CORS origin")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("server.upload-dir", serveCmd.Flags().Lookup("upload-dir"))
	viper.BindPFlag("server.frontend-url", serveCmd.Flags().Lookup("frontend-url"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	pipeline, _, err := newPipeline(config, logger)
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	logger.Info("starting the cv-screener api", zap.String("version", version))

	srv := server.New(server.Config{
		Listen:         config.Server.Listen,
		UploadDir:      config.Server.UploadDir,
		MaxUploadBytes: config.Server.MaxUploadBytes,
		FrontendURL:    config.Server.FrontendURL,
		Extensions:     config.Screening.Extensions,
		ShortlistSize:  config.Screening.ShortlistSize,
		Version:        version,
	}, pipeline, jobs.NewRegistry(), logger)

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("http server stopped", zap.Error(err))
	}
	logger.Info("bye")
}
