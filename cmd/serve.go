package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trackrhq/trackr/internal/api"
	"github.com/trackrhq/trackr/internal/auth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing the JSON REST API under /api.
By default it listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		secret := viper.GetString("auth.jwt_secret")
		if secret == "" {
			return fmt.Errorf("auth.jwt_secret is not set (set TRACKR_AUTH_JWT_SECRET or add it to the config file)")
		}
		tokens := auth.NewTokens(secret, viper.GetDuration("auth.token_ttl"))

		srv := api.NewServer(s, tokens)

		port := viper.GetInt("port")
		addr := fmt.Sprintf(":%d", port)
		slog.Info("starting API server", "addr", addr)
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
