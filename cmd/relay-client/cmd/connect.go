package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/wsclient"
	pkglog "github.com/AetherKnowledge/capstone/pkg/log"
)

var (
	connectURL         string
	connectToken       string
	connectChatID      string
	connectNoReconnect bool
	connectMaxAttempts int
	connectBase        time.Duration
	connectMax         time.Duration
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Join a chat and relay stdin lines as messages",
	Long: `Connect opens a websocket to a chat and keeps it open, reconnecting with
exponential backoff when the connection drops. Every stdin line is sent as
a MESSAGE envelope; every inbound envelope is printed to stdout.

Example:
  relay-client connect --url ws://localhost:8090/ws/chats/general --token $TOKEN`,
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().StringVar(&connectURL, "url", "", "websocket URL of the chat (required)")
	connectCmd.Flags().StringVar(&connectToken, "token", "", "identity token sent as a Bearer header")
	connectCmd.Flags().StringVar(&connectChatID, "chat", "", "chat id for outgoing messages (default: last URL path segment)")
	connectCmd.Flags().BoolVar(&connectNoReconnect, "no-reconnect", false, "exit instead of reconnecting after a drop")
	connectCmd.Flags().IntVar(&connectMaxAttempts, "max-attempts", 0, "consecutive reconnect attempts before giving up (0 = unlimited)")
	connectCmd.Flags().DurationVar(&connectBase, "backoff-base", time.Second, "first reconnect delay")
	connectCmd.Flags().DurationVar(&connectMax, "backoff-max", 10*time.Second, "reconnect delay cap")
	_ = connectCmd.MarkFlagRequired("url")
}

func runConnect(cmd *cobra.Command, args []string) error {
	logger := pkglog.L()

	chatID := connectChatID
	if chatID == "" {
		id, err := chatIDFromURL(connectURL)
		if err != nil {
			return err
		}
		chatID = id
	}

	out := cmd.OutOrStdout()
	header := http.Header{}
	if connectToken != "" {
		header.Set("Authorization", "Bearer "+connectToken)
	}

	opts := wsclient.Options{
		Reconnect:    !connectNoReconnect,
		BaseInterval: connectBase,
		MaxInterval:  connectMax,
		MaxAttempts:  connectMaxAttempts,
		OnMessage: func(data []byte) {
			fmt.Fprintln(out, formatEnvelope(data))
		},
		OnStateChange: func(s wsclient.State) {
			logger.Info().Str("state", s.String()).Msg("connection state changed")
		},
	}
	client := wsclient.New(connectURL, opts, wsclient.WithDialer(&wsclient.WebsocketDialer{
		Dialer: websocket.DefaultDialer,
		Header: header,
	}))

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial connect failed")
	}
	defer client.Disconnect()

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			frame, err := buildMessageFrame(chatID, line)
			if err != nil {
				return err
			}
			if err := client.Send(frame); err != nil {
				logger.Warn().Err(err).Str("state", client.State().String()).Msg("message not sent")
			}
		}
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// chatIDFromURL returns the last path segment of a chat websocket URL.
func chatIDFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	id := path.Base(strings.TrimRight(u.Path, "/"))
	if id == "" || id == "." || id == "/" {
		return "", fmt.Errorf("no chat id in url %q", raw)
	}
	return id, nil
}

func buildMessageFrame(chatID, content string) ([]byte, error) {
	env, err := domain.NewEnvelope(domain.EnvelopeMessage, struct {
		ChatID  string `json:"chatId"`
		Content string `json:"content"`
	}{chatID, content})
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func formatEnvelope(data []byte) string {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return string(data)
	}

	switch env.Type {
	case domain.EnvelopeMessage:
		var msg domain.MessagePayload
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return string(data)
		}
		name := msg.Name
		if name == "" {
			name = msg.UserID
		}
		return fmt.Sprintf("[%s] %s: %s", msg.CreatedAt, name, msg.Content)
	case domain.EnvelopeError:
		var e domain.ErrorPayload
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return string(data)
		}
		if e.Code != 0 {
			return fmt.Sprintf("error %d: %s", e.Code, e.Message)
		}
		return "error: " + e.Message
	default:
		return fmt.Sprintf("%s %s", env.Type, string(env.Payload))
	}
}

