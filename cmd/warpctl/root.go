package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "warpctl",
		Short:         "Synchronize one state value between two peers",
		Long:          "warpctl hosts or joins a two-peer statewarp session over TCP. The host prints a bootstrap link and QR code; the joining peer dials the identity carried by that link.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a TOML config file")

	rootCmd.AddCommand(
		newHostCmd(),
		newJoinCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the warpctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "warpctl %s\n", version)
		},
	}
}

// resolveConfig loads --config when given and applies flag overrides.
func resolveConfig(cmd *cobra.Command) (peerConfig, error) {
	cfg := defaultPeerConfig()
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		loaded, err := loadPeerConfig(path)
		if err != nil {
			return peerConfig{}, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("listen") {
		cfg.TCP.ListenAddr, _ = cmd.Flags().GetString("listen")
	}
	if cmd.Flags().Changed("console") {
		addr, _ := cmd.Flags().GetString("console")
		cfg.Console.Addr = addr
		cfg.Console.Enabled = addr != ""
	}
	if cmd.Flags().Changed("state") {
		raw, _ := cmd.Flags().GetString("state")
		v, err := parseInitialState(raw)
		if err != nil {
			return peerConfig{}, err
		}
		cfg.InitialState = v
	}
	if cmd.Flags().Changed("attach") {
		specs, _ := cmd.Flags().GetStringArray("attach")
		v, err := withAttachments(cfg.InitialState, specs)
		if err != nil {
			return peerConfig{}, err
		}
		cfg.InitialState = v
	}
	if cmd.Flags().Changed("no-qr") {
		noQR, _ := cmd.Flags().GetBool("no-qr")
		cfg.ShowQR = !noQR
	}
	return cfg, nil
}

func addPeerFlags(cmd *cobra.Command) {
	cmd.Flags().String("listen", "", "tcp listen address")
	cmd.Flags().String("console", "", "HTTP control surface address (empty disables)")
	cmd.Flags().String("state", "", "initial state as JSON")
	cmd.Flags().StringArray("attach", nil, "attach a file to the initial state as key=path")
}
