package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ParwinderBaidwan/PeepPost/internal/client"
	applog "github.com/ParwinderBaidwan/PeepPost/internal/log"
	"github.com/ParwinderBaidwan/PeepPost/internal/proto"
)

type options struct {
	server    string
	tokenFile string
	logLevel  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "dmchat",
		Short:         "Terminal client for peeppost direct messages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	root.PersistentFlags().StringVar(&opts.tokenFile, "token-file", defaultTokenFile(), "where the session token is stored")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "client log level")

	root.AddCommand(loginCmd(opts), conversationsCmd(opts), sendCmd(opts), watchCmd(opts))
	return root
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".dmchat-token"
	}
	return filepath.Join(dir, "peeppost", "token")
}

func loginCmd(opts *options) *cobra.Command {
	var register bool
	var name string

	cmd := &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Log in (or register with --register) and store the token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := applog.New(opts.logLevel, "console")

			var (
				sess *client.Session
				err  error
			)
			if register {
				sess, err = client.Register(cmd.Context(), opts.server, args[0], args[1], name, logger)
			} else {
				sess, err = client.Login(cmd.Context(), opts.server, args[0], args[1], logger)
			}
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(opts.tokenFile), 0o700); err != nil {
				return fmt.Errorf("create token dir: %w", err)
			}
			if err := os.WriteFile(opts.tokenFile, []byte(sess.Token()), 0o600); err != nil {
				return fmt.Errorf("save token: %w", err)
			}

			color.New(color.FgGreen).Print("▶ ")
			fmt.Printf("logged in as %s (%s)\n", sess.Self().Username, sess.Self().ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&register, "register", false, "create the account first")
	cmd.Flags().StringVar(&name, "name", "", "display name when registering")
	return cmd
}

func resume(ctx context.Context, opts *options) (*client.Session, error) {
	raw, err := os.ReadFile(opts.tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token (run dmchat login first): %w", err)
	}
	return client.Resume(ctx, opts.server, strings.TrimSpace(string(raw)), applog.New(opts.logLevel, "console"))
}

func conversationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := resume(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := sess.Refresh(cmd.Context()); err != nil {
				return err
			}
			printConversations(sess)
			return nil
		},
	}
}

func printConversations(sess *client.Session) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"With", "Last message", "When", "ID"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	for _, c := range sess.List().Entries() {
		peer := counterpart(sess, c)
		text, when := "", ""
		if c.LastMessage != nil {
			text = c.LastMessage.Text
			if c.LastMessage.Sender == sess.Self().ID {
				text = "you: " + text
			}
			when = time.Unix(c.LastMessage.TS, 0).Format(time.DateTime)
		}
		who := peer.Username
		if c.Online {
			who += " •"
		}
		table.Append([]string{who, text, when, c.ID})
	}
	table.Render()
}

func sendCmd(opts *options) *cobra.Command {
	var img string

	cmd := &cobra.Command{
		Use:   "send <username|id> <text>",
		Short: "Send a message, starting the conversation if needed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := resume(ctx, opts)
			if err != nil {
				return err
			}
			if err := sess.Refresh(ctx); err != nil {
				return err
			}

			target, err := sess.Search(ctx, args[0])
			if err != nil {
				return err
			}
			msg, err := sess.Send(ctx, target.ID, strings.Join(args[1:], " "), img)
			if err != nil {
				return err
			}

			color.New(color.FgGreen).Print("✓ ")
			fmt.Printf("sent to %s in %s\n", counterpart(sess, target).Username, msg.ConversationID)
			return nil
		},
	}
	cmd.Flags().StringVar(&img, "img", "", "image URL to attach")
	return cmd
}

func watchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream presence changes and incoming messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := resume(ctx, opts)
			if err != nil {
				return err
			}
			if err := sess.Refresh(ctx); err != nil {
				return err
			}

			cyan := color.New(color.FgCyan)
			gray := color.New(color.FgHiBlack)
			red := color.New(color.FgRed)
			cyan.Printf("watching as %s, Ctrl+C to exit\n", sess.Self().Username)

			return sess.Watch(ctx, func(event string, data any) {
				switch d := data.(type) {
				case proto.OnlineUsers:
					gray.Printf("online: %s\n", strings.Join(d.Users, ", "))
				case proto.NewMessage:
					from := d.Message.Sender
					for _, p := range d.Conversation.Participants {
						if p.ID == from {
							from = p.Username
						}
					}
					body := d.Message.Text
					if body == "" && d.Message.Img != "" {
						body = d.Message.Img
					}
					cyan.Printf("[%s] ", time.Unix(d.Message.TS, 0).Format(time.TimeOnly))
					fmt.Printf("%s: %s\n", from, body)
				case *proto.Error:
					red.Printf("error %s: %s\n", d.Code, d.Msg)
				default:
					gray.Printf("%s\n", event)
				}
			})
		},
	}
}

func counterpart(sess *client.Session, c proto.Conversation) proto.User {
	for _, p := range c.Participants {
		if p.ID != sess.Self().ID {
			return p
		}
	}
	return proto.User{}
}
