package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dbechrd/slimerrt/pkg/chat"
	"github.com/dbechrd/slimerrt/pkg/client"
	"github.com/dbechrd/slimerrt/pkg/telemetry"
	"github.com/spf13/cobra"
)

func connectCmd() *cobra.Command {
	var (
		host     string
		port     int
		network  string
		username string
		password string
		poll     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a server as a headless chat client",
		Long: `Join a server and chat from the terminal.

Every line read from stdin is sent as a chat message. Lines
starting with a slash are commands:

  /quit        disconnect and exit
  /disconnect  leave the server but keep running
  /reconnect   connect again with the same credentials

The password is read from --password or SLIMERRT_PASSWORD.

Examples:
  slimerrt connect --username=Sam
  SLIMERRT_PASSWORD=hunter2 slimerrt connect -H game.example.com -p 4242`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			if host != "" {
				cfg.Client.Host = host
			}
			if port > 0 {
				cfg.Client.Port = port
			}
			if network != "" {
				cfg.Server.Network = network
			}
			if username != "" {
				cfg.Client.Username = username
			}
			if password != "" {
				cfg.Client.Password = password
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			n, err := newNetwork(cfg, logger)
			if err != nil {
				return err
			}

			cc := client.DefaultConfig().
				WithNetwork(n).
				WithConnectTimeout(cfg.Transport.ConnectTimeout.Std()).
				WithTracer(telemetry.NewTracer("slimerrt/client")).
				WithLogger(logger)
			cc.OnStateChange = func(from, to client.State) {
				logger.Debug("state change", "from", from, "to", to)
			}

			s := &session{
				client:   client.New(cc),
				host:     cfg.Client.Host,
				port:     cfg.Client.Port,
				username: cfg.Client.Username,
				password: cfg.Client.Password,
				out:      cmd.OutOrStdout(),
			}
			return s.run(cmd.InOrStdin(), poll)
		},
	}

	cmd.Flags().StringVarP(&host, "host", "H", "", "Server host (default from slimerrt.json)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (default from slimerrt.json)")
	cmd.Flags().StringVarP(&network, "network", "n", "", "Transport: udp or ws (default from slimerrt.json)")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Name shown to other players")
	cmd.Flags().StringVar(&password, "password", "", "Login password (prefer SLIMERRT_PASSWORD)")
	cmd.Flags().DurationVar(&poll, "poll", 20*time.Millisecond, "How often to drain the network")

	return cmd
}

// session drives one headless client from a line-oriented input.
type session struct {
	client   *client.Client
	host     string
	port     int
	username string
	password string
	out      io.Writer

	// last is the newest chat line already printed.
	last    chat.Line
	printed bool
}

func (s *session) run(in io.Reader, poll time.Duration) error {
	if err := s.client.OpenTransport(); err != nil {
		return err
	}
	defer s.client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.connect(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.client.Disconnect()
			s.flush()
			return nil

		case line, ok := <-lines:
			if !ok {
				s.client.Disconnect()
				s.flush()
				return nil
			}
			quit, err := s.handleLine(ctx, line)
			if err != nil && !errors.Is(err, client.ErrNotConnected) {
				warn("%v", err)
			}
			s.flush()
			if quit {
				return nil
			}

		case <-ticker.C:
			if err := s.client.Receive(); err != nil {
				return err
			}
			s.flush()
		}
	}
}

func (s *session) connect(ctx context.Context) error {
	return s.client.Connect(ctx, s.host, s.port, s.username, []byte(s.password))
}

// handleLine sends line as chat or runs it as a command. It reports
// whether the session should end.
func (s *session) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false, nil
	case "/quit":
		s.client.Disconnect()
		return true, nil
	case "/disconnect":
		return false, s.client.Disconnect()
	case "/reconnect":
		return false, s.connect(ctx)
	}
	if strings.HasPrefix(line, "/") {
		return false, fmt.Errorf("unknown command %q", line)
	}
	return false, s.client.SendChatMessage(line)
}

// flush prints chat lines pushed since the last call.
func (s *session) flush() {
	lines := s.client.Chat().Lines()
	start := 0
	if s.printed {
		for i := len(lines) - 1; i >= 0; i-- {
			if sameLine(lines[i], s.last) {
				start = i + 1
				break
			}
		}
	}
	for _, l := range lines[start:] {
		fmt.Fprintf(s.out, "%s %s\n", l.Timestamp.Format("15:04:05"), chat.Format(l.Value))
	}
	if len(lines) > 0 {
		s.last = lines[len(lines)-1]
		s.printed = true
	}
}

func sameLine(a, b chat.Line) bool {
	return a.Timestamp.Equal(b.Timestamp) && a.Value == b.Value
}
