package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulsebot/pulse/internal/adminclient"
	"github.com/pulsebot/pulse/internal/config"
)

func newChatCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	var (
		message    string
		sender     string
		timeoutSec int
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run a message through a live instance's pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := adminclient.New(config.FromEnv())

			text := strings.TrimSpace(message)
			if text == "" && len(args) > 0 {
				text = strings.TrimSpace(strings.Join(args, " "))
			}

			if text != "" {
				ctx, cancel := context.WithTimeout(context.Background(), boundedTimeout(timeoutSec))
				defer cancel()
				response, err := client.Chat(ctx, adminclient.ChatRequest{Text: text, Sender: sender})
				if err != nil {
					return err
				}
				printReply(cmd, response)
				return nil
			}

			cmd.Println("Interactive mode. Type /exit to quit.")
			return runInteractiveChat(cmd, client, sender, timeoutSec)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "single message to send (non-interactive mode)")
	cmd.Flags().StringVar(&sender, "sender", "cli", "sender label recorded in the conversation history")
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 120, "request timeout in seconds")
	return cmd
}

func runInteractiveChat(cmd *cobra.Command, client *adminclient.Client, sender string, timeoutSec int) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		cmd.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/exit" || text == "/quit" {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), boundedTimeout(timeoutSec))
		response, err := client.Chat(ctx, adminclient.ChatRequest{Text: text, Sender: sender})
		cancel()
		if err != nil {
			cmd.PrintErrf("chat request failed: %v\n", err)
			continue
		}
		printReply(cmd, response)
	}
	return scanner.Err()
}

func printReply(cmd *cobra.Command, response adminclient.ChatResponse) {
	reply := strings.TrimSpace(response.Reply)
	if reply == "" {
		cmd.Println("(no reply)")
		return
	}
	lines := strings.Split(reply, "\n")
	for index, line := range lines {
		line = strings.TrimRight(line, "\r")
		if index == 0 {
			cmd.Printf("agent> %s\n", line)
			continue
		}
		cmd.Printf("       %s\n", line)
	}
}

func newConversationsCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	var limit int
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations from a live instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := adminclient.New(config.FromEnv())
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			conversations, err := client.Conversations(ctx, limit)
			if err != nil {
				return err
			}
			if len(conversations) == 0 {
				cmd.Println("no conversations")
				return nil
			}
			for _, conversation := range conversations {
				lastActivity := time.Unix(conversation.LastActivityUnix, 0).UTC().Format(time.RFC3339)
				cmd.Printf("%s peer=%s messages=%d last_activity=%s\n",
					conversation.ID, conversation.PeerAddress, len(conversation.Messages), lastActivity)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max conversations to list")
	return cmd
}

func newAgentCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Control the message listener of a live instance",
	}
	cmd.AddCommand(newAgentActionCommand("start", "Start the message listener", func(ctx context.Context, client *adminclient.Client) (adminclient.AgentStatus, error) {
		return client.AgentStart(ctx)
	}))
	cmd.AddCommand(newAgentActionCommand("stop", "Stop the message listener", func(ctx context.Context, client *adminclient.Client) (adminclient.AgentStatus, error) {
		return client.AgentStop(ctx)
	}))
	cmd.AddCommand(newAgentActionCommand("status", "Show listener and connection state", func(ctx context.Context, client *adminclient.Client) (adminclient.AgentStatus, error) {
		return client.AgentStatus(ctx)
	}))
	return cmd
}

func newAgentActionCommand(use, short string, action func(context.Context, *adminclient.Client) (adminclient.AgentStatus, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := adminclient.New(config.FromEnv())
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			status, err := action(ctx, client)
			if err != nil {
				return err
			}
			cmd.Printf("running=%t connected=%t\n", status.IsRunning, status.ClientConnected)
			if len(status.Metrics) > 0 {
				cmd.Println(formatMetrics(status.Metrics))
			}
			return nil
		},
	}
}

func formatMetrics(metrics map[string]int64) string {
	parts := make([]string, 0, len(metrics))
	for name, value := range metrics {
		parts = append(parts, fmt.Sprintf("%s=%d", name, value))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func boundedTimeout(input int) time.Duration {
	if input < 1 {
		input = 120
	}
	if input > 600 {
		input = 600
	}
	return time.Duration(input) * time.Second
}
