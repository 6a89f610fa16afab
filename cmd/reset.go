package cmd

import (
	"fmt"

	"github.com/Thanhpt21/chatsync-go/internal/config"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all widget-local state (guest session, cached conversation, pending messages)",
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	local, err := makeLocalStore(cfg)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	if err := local.Clear(); err != nil {
		return fmt.Errorf("clearing local state: %w", err)
	}
	fmt.Println("✓ Local state cleared")
	return nil
}
