package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smallnest/fabflow/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the review workflow server. Runs stream over SSE; a run suspended at the
review gate is resumed by a later request carrying the reviewer's verdict.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, map[string]string{
			"server.addr":   "addr",
			"store.backend": "store",
			"llm.provider":  "provider",
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		srv := server.New(a.service,
			server.WithAddr(cfg.Server.Addr),
			server.WithCORSOrigins(cfg.Server.CORSOrigins),
			server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
			server.WithLogger(a.logger),
			server.WithMetrics(a.metrics),
			server.WithRouter(a.router),
			server.WithChatbot(a.chatbot),
		)
		a.logger.Info("checkpoint store %s, vector store %s, model %s/%s",
			cfg.Store.Backend, cfg.RAG.Backend, cfg.LLM.Provider, cfg.LLM.Model)
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", server.DefaultAddr, "Address to listen on")
	serveCmd.Flags().String("store", "", "Checkpoint store: memory, file, redis, postgres, sqlite")
	serveCmd.Flags().String("provider", "", "LLM provider: openai, fake")
}
