package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Thanhpt21/chatsync-go/internal/api"
	"github.com/Thanhpt21/chatsync-go/internal/config"
	"github.com/Thanhpt21/chatsync-go/internal/engine"
	"github.com/Thanhpt21/chatsync-go/internal/indicator"
	"github.com/Thanhpt21/chatsync-go/internal/socket"
	"github.com/Thanhpt21/chatsync-go/internal/store"
	"github.com/spf13/cobra"
)

var widgetCmd = &cobra.Command{
	Use:   "widget",
	Short: "Run the chat widget in the terminal",
	RunE:  runWidget,
}

var widgetUser string

func init() {
	widgetCmd.Flags().StringVarP(&widgetUser, "user", "u", "", "Authenticated user id (empty = guest)")
	rootCmd.AddCommand(widgetCmd)
}

func runWidget(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	local, err := makeLocalStore(cfg)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}

	eng := engine.New(engine.Config{
		GatewayURL: cfg.GatewayURL,
		API:        api.NewClient(cfg.APIURL),
		Local:      local,
		Timings:    cfg.Timings,
	})
	defer eng.Close()

	eng.OnMessage(func(msg store.Message) {
		printMessage(msg)
	})
	eng.Indicator().OnChange(func(s indicator.State) {
		if s == indicator.Active {
			fmt.Println("  ... bot is responding")
		}
	})

	eng.Start(widgetUser)
	eng.SetVisible(true)
	if widgetUser != "" {
		eng.OnConnectionState(func(s socket.State) {
			fmt.Printf("  [%s]\n", s)
		})
	}

	fmt.Println("💬 chatsync widget")
	fmt.Println(eng.StatusText())
	fmt.Println("Type a message, or /login <id>, /logout, /status, /quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			fmt.Println("\nbye")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(eng, line); done {
				return nil
			}
		}
	}
}

// handleLine runs one REPL input. Returns true on /quit.
func handleLine(eng *engine.Engine, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/logout":
		eng.SetIdentity("")
		fmt.Println(eng.StatusText())
		return false
	case strings.HasPrefix(line, "/login "):
		userID := strings.TrimSpace(strings.TrimPrefix(line, "/login "))
		if userID == "" {
			fmt.Println("usage: /login <user id>")
			return false
		}
		eng.SetIdentity(userID)
		fmt.Println(eng.StatusText())
		return false
	case line == "/status":
		fmt.Println(eng.StatusText())
		fmt.Printf("Messages: %d  Unread: %d  Channel: %s\n",
			len(eng.Messages()), eng.Unread(), eng.ConnectionState())
		return false
	default:
		if !eng.Send(line, nil) {
			fmt.Println("  (not sent - wait a moment and try again)")
		}
		return false
	}
}

func printMessage(msg store.Message) {
	who := "you"
	if msg.SenderType == store.SenderBot {
		who = "bot"
	}
	suffix := ""
	if msg.Status == store.StatusLocal {
		suffix = " (local)"
	}
	fmt.Printf("  %s: %s%s\n", who, msg.Body, suffix)
}
