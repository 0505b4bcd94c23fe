package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Polqt/crdts/session"
	"github.com/Polqt/crdts/transport"
)

var (
	flagAddr string
	flagNode string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crdtserver",
		Short: "Collaborative text editing server backed by a CRDT RGArray",
		RunE:  runServe,
	}
	root.PersistentFlags().StringVar(&flagAddr, "addr", ":8080", "address to listen on")
	root.PersistentFlags().StringVar(&flagNode, "node", "", "this replica's node identity, reported in the startup log (empty by default)")
	root.AddCommand(newMerkleSyncCmd())
	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	hub := session.NewHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", transport.NewWSHandler(hub).ServeHTTP)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/merkle", func(w http.ResponseWriter, r *http.Request) {
		docID := r.URL.Query().Get("doc")
		if docID == "" {
			docID = "default"
		}
		h := hub.MerkleHistory(docID)
		leaves := make([]string, len(h.Leaves))
		for i, leaf := range h.Leaves {
			leaves[i] = hex.EncodeToString(leaf)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(merkleResponse{
			Root:   hex.EncodeToString(h.Root),
			Leaves: leaves,
		})
	})

	srv := &http.Server{
		Addr:    flagAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("crdt collaboration server listening", "addr", flagAddr, "node", flagNode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// merkleResponse is the wire shape of the /merkle debug endpoint.
type merkleResponse struct {
	Root   string   `json:"root"`
	Leaves []string `json:"leaves"`
}
