package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/orchestrator"
)

// #region chat-cmd

func newChatCmd(a *app) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session; 'quit' to exit, '/user NAME' to switch user, '/history' for recent turns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			rt, err := a.openEngine(ctx, st)
			if err != nil {
				return err
			}
			defer rt.Close()

			if addr := a.cfg.MetricsAddr; addr != "" {
				shutdown := serveMetrics(addr, rt.registry, a.log)
				defer shutdown()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Responder ready.")
			fmt.Fprintf(out, "  DB: %s | User: %s\n", a.cfg.DBPath, userID)
			fmt.Fprintln(out, "Type a message (or 'quit' to exit):")
			return chatLoop(ctx, cmd.InOrStdin(), out, rt.engine, userID)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "user id the session learns for")
	return cmd
}

// #endregion chat-cmd

// #region chat-loop

// chatLoop reads one utterance per line until EOF, quit or ctx is done.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, engine *orchestrator.Orchestrator, userID string) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if name, ok := strings.CutPrefix(line, "/user "); ok {
			if name = strings.TrimSpace(name); name != "" {
				userID = name
				fmt.Fprintf(out, "[user=%s]\n", userID)
			}
			continue
		}
		if line == "/history" {
			printHistory(out, engine.History().Recent(5))
			continue
		}

		resp := engine.Respond(ctx, userID, line)
		fmt.Fprintf(out, "\n%s\n\n", resp.Response)
		fmt.Fprintf(out, "[%s] strategy=%s grade=%s quality=%.3f confidence=%.3f %dms\n",
			shortID(resp.RequestID), resp.Strategy, resp.Grade, resp.QualityScore, resp.Confidence, resp.ProcessingTime)
		if resp.ImprovedResponse != "" {
			fmt.Fprintf(out, "  improved: %s\n", resp.ImprovedResponse)
		}
		if resp.Error != "" {
			fmt.Fprintf(out, "  note: %s\n", resp.Error)
		}
	}
	return scanner.Err()
}

func printHistory(out io.Writer, entries []orchestrator.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "(no history)")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %-8s  %-22s  %5.3f  %s → %s\n",
			e.Timestamp.Format("15:04:05"), e.UserID, e.Strategy, e.Quality, e.Input, e.Response)
	}
}

// #endregion chat-loop

// #region metrics-server

// serveMetrics exposes reg on addr/metrics and returns a shutdown func.
func serveMetrics(addr string, reg *prometheus.Registry, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// #endregion metrics-server
