package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/statewarp/internal/codec"
	"github.com/danmuck/statewarp/internal/console"
	"github.com/danmuck/statewarp/internal/link"
	"github.com/danmuck/statewarp/internal/logging"
	"github.com/danmuck/statewarp/internal/session"
	"github.com/danmuck/statewarp/internal/transport/tcpnet"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a session and print its bootstrap link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return runPeer(cmd.Context(), cmd.OutOrStdout(), cfg, "")
		},
	}
	addPeerFlags(cmd)
	cmd.Flags().Bool("no-qr", false, "do not render the bootstrap QR code")
	return cmd
}

func newJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <link|identity>",
		Short: "Join a hosted session by bootstrap link or peer identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			target, err := resolveTarget(args[0])
			if err != nil {
				return err
			}
			return runPeer(cmd.Context(), cmd.OutOrStdout(), cfg, target)
		},
	}
	addPeerFlags(cmd)
	return cmd
}

// resolveTarget accepts either a bootstrap link or a bare peer identity.
func resolveTarget(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("empty join target")
	}
	if strings.Contains(arg, "?") {
		id, err := link.Parse(arg)
		if err != nil {
			return "", err
		}
		arg = id
	}
	if _, _, err := tcpnet.ParseIdentity(arg); err != nil {
		return "", err
	}
	return arg, nil
}

func runPeer(parent context.Context, out io.Writer, cfg peerConfig, target string) error {
	logging.ConfigureRuntime("warpctl")
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusCh := make(chan session.Status, 16)
	peer := tcpnet.New(cfg.TCP)
	sess, err := session.Start(ctx, peer, cfg.InitialState, session.Config{
		Target: target,
		OnStatus: func(st session.Status) {
			select {
			case statusCh <- st:
			default:
			}
		},
		OnSync: func(v any) {
			b, _, err := codec.EncodeJSON(ctx, v)
			if err != nil {
				log.Warn().Err(err).Msg("render synced value")
				return
			}
			fmt.Fprintf(out, "sync: %s\n", b)
		},
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if cfg.Console.Enabled {
		srv := console.New(sess, console.Config{
			ID:          "warpctl." + sess.Role().String(),
			Addr:        cfg.Console.Addr,
			CORSOrigins: cfg.Console.CORSOrigins,
			LinkBase:    cfg.LinkBase,
		})
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error().Err(err).Str("addr", cfg.Console.Addr).Msg("console stopped")
			}
		}()
	}

	announced := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return sess.Err()
		case st := <-statusCh:
			fmt.Fprintf(out, "status: %s\n", st)
			switch st {
			case session.StatusIdle:
				if sess.IsHost() && !announced {
					announced = true
					if err := announce(out, cfg, sess.LocalID()); err != nil {
						return err
					}
				}
			case session.StatusConnected:
				fmt.Fprintf(out, "connected to %s\n", sess.RemoteID())
			case session.StatusDisconnected:
				return sess.Err()
			}
		}
	}
}

func announce(out io.Writer, cfg peerConfig, identity string) error {
	raw, err := link.Build(cfg.LinkBase, identity)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session: %s\nlink: %s\n", identity, raw)
	if !cfg.ShowQR {
		return nil
	}
	art, err := link.Terminal(raw)
	if err != nil {
		return err
	}
	fmt.Fprint(out, art)
	return nil
}
