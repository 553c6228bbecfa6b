/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/ByAncort/JwtAuth/config"
	"github.com/ByAncort/JwtAuth/internal/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the authentication server",
	Long: `Starts the JWT authentication server. Usage:

	authjwt server
`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		cfg := config.LoadConfig()

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
