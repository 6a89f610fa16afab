package cmd

import (
	"fmt"

	"github.com/Thanhpt21/chatsync-go/internal/config"
	"github.com/Thanhpt21/chatsync-go/internal/localstore"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chatsync status and local state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	configPath := config.GetConfigPath()
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("💬 chatsync Status")
	fmt.Println()
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Gateway: %s\n", cfg.GatewayURL)
	fmt.Printf("API: %s\n", cfg.APIURL)
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	if cfg.Redis != nil && cfg.Redis.URL != "" {
		fmt.Printf("Redis: %s\n", cfg.Redis.URL)
	}

	local, err := makeLocalStore(cfg)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}

	fmt.Println("\nLocal state:")
	if id := localstore.GuestSessionID(local); id != "" {
		fmt.Printf("  Guest session: %s\n", id)
	}
	if id := localstore.ConversationID(local); id != "" {
		fmt.Printf("  Conversation: %s\n", id)
	}
	if n := len(localstore.GuestMessages(local)); n > 0 {
		fmt.Printf("  Pending guest messages: %d\n", n)
	}

	return nil
}
