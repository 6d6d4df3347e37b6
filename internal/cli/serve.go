package cli

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/anchorlab/anchorengine/internal/api"
	"github.com/anchorlab/anchorengine/internal/store"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "override the configured API host")
	serveCmd.Flags().Int("port", 0, "override the configured API port")
	serveCmd.Flags().Bool("metrics", true, "expose the /metrics Prometheus endpoint")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the anchor engine HTTP API",
	Long:  `serve starts the HTTP API exposing POST /v1/explain and POST /v1/globalpick.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.API.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.API.Port = port
	}
	withMetrics, _ := cmd.Flags().GetBool("metrics")

	var st *store.Store
	if cfg.Store.Path != "" {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		st = store.NewStore(db)
	}

	srv := api.NewServer(cfg, st)
	if withMetrics {
		srv.EnableMetrics()
	}

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	log.Printf("serve: listening on %s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
