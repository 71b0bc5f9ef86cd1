package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"casedoc/internal/util"
	"casedoc/pkg/capture"
	"casedoc/services/recorder/internal/config"
	"casedoc/services/recorder/internal/docclient"
)

// cliState carries state shared by subcommands once the config is loaded.
type cliState struct {
	configPath string
	cfg        config.FileConfig
	logger     *slog.Logger
	client     *docclient.Client
}

// RootCommand creates and returns the root command.
func RootCommand() *cobra.Command {
	rt := &cliState{}
	rootCmd := &cobra.Command{
		Use:           "recorder",
		Short:         "Record conversations and upload them as standalone artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&rt.configPath, "config", "c", config.ConfigPath, "Path to recorder config file")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(rt.configPath)
		if err != nil {
			return err
		}
		rt.cfg = cfg
		rt.logger = util.InitLogger(cfg.LogLevel, cmd.ErrOrStderr())
		rt.client = docclient.NewClient(cfg.ServiceURL, time.Duration(cfg.TimeoutSeconds)*time.Second)
		return nil
	}

	rootCmd.AddCommand(recordCommand(rt), listCommand(rt))
	return rootCmd
}

func recordCommand(rt *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Record from the default microphone",
		Long:  `Record from the default microphone. Type p, r, s or q followed by Enter to pause, resume, stop or cancel.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := capture.NewController(capture.MalgoDevice{Logger: rt.logger}, capture.Options{
				Format: capture.Format{SampleRate: rt.cfg.SampleRate, Channels: rt.cfg.Channels},
				Logger: rt.logger,
			})
			s := &session{ctrl: ctrl, upload: rt.client, out: cmd.OutOrStdout()}
			_, _, err := s.run(cmd.Context(), cmd.InOrStdin())
			return err
		},
	}
}

func listCommand(rt *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recordings that belong to no documentation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := rt.client.ListStandalone(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILE\tDURATION\tCREATED\tTRANSCRIPT")
			for _, art := range items {
				transcript := "no"
				if art.TranscriptText != nil {
					transcript = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", art.ID, art.FileName,
					formatElapsed(time.Duration(art.DurationMs)*time.Millisecond),
					art.CreatedAt.Local().Format(time.DateTime), transcript)
			}
			return w.Flush()
		},
	}
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := RootCommand().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
