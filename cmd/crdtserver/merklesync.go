package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var flagMerkleDoc string

func newMerkleSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merkle-sync <peer-addr>",
		Short: "Compare a document's Merkle history against a peer's /merkle endpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  runMerkleSync,
	}
	cmd.Flags().StringVar(&flagMerkleDoc, "doc", "default", "document id to compare")
	return cmd
}

func runMerkleSync(cmd *cobra.Command, args []string) error {
	peerAddr := args[0]

	local, err := fetchMerkle("http://" + trimScheme(flagAddr) + "/merkle?doc=" + flagMerkleDoc)
	if err != nil {
		return fmt.Errorf("fetching local merkle history: %w", err)
	}
	peer, err := fetchMerkle("http://" + trimScheme(peerAddr) + "/merkle?doc=" + flagMerkleDoc)
	if err != nil {
		return fmt.Errorf("fetching peer merkle history: %w", err)
	}

	if local.Root == peer.Root {
		fmt.Printf("doc %q: roots match (%s), replicas are converged\n", flagMerkleDoc, local.Root)
		return nil
	}

	localSet := make(map[string]struct{}, len(local.Leaves))
	for _, l := range local.Leaves {
		localSet[l] = struct{}{}
	}
	var missing []string
	for _, l := range peer.Leaves {
		if _, ok := localSet[l]; !ok {
			missing = append(missing, l)
		}
	}

	fmt.Printf("doc %q: roots differ (local=%s peer=%s)\n", flagMerkleDoc, local.Root, peer.Root)
	fmt.Printf("missing %d of %d peer leaves locally\n", len(missing), len(peer.Leaves))
	for _, l := range missing {
		fmt.Println("  -", l)
	}
	return nil
}

func fetchMerkle(url string) (merkleResponse, error) {
	resp, err := http.Get(url)
	if err != nil {
		return merkleResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return merkleResponse{}, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	var out merkleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return merkleResponse{}, err
	}
	return out, nil
}

// trimScheme prefixes an addr flag like ":8080" with "localhost" so it can
// be used for a same-host debug request; any other addr is returned as is.
func trimScheme(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
