package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/pondvision/internal/app"
	"github.com/dharsanguruparan/pondvision/internal/certificate"
	"github.com/dharsanguruparan/pondvision/internal/config"
	"github.com/dharsanguruparan/pondvision/internal/intake"
	"github.com/dharsanguruparan/pondvision/internal/processing"
	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

type rootOptions struct {
	configDir string
	seed      uint64
	fast      bool
	cfg       *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pondvision: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pondvision",
		Short: "Fish health & age detector (for fun)",
		Long: `PondVision runs a completely fake analysis of a fish photo or video, prints a joke
health verdict and can export it as a PDF certificate. No fish are actually analyzed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configDir)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = opts.seed
			}
			if opts.fast {
				cfg.StageScale = 0
			}
			opts.cfg = cfg
			return cfg.ConfigureLogging(cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "Directory searched for pondvision.yaml")
	cmd.PersistentFlags().Uint64Var(&opts.seed, "seed", 0, "Seed for reproducible verdicts")
	cmd.PersistentFlags().BoolVar(&opts.fast, "fast", false, "Skip the dramatic pauses")
	cmd.AddCommand(
		newAnalyzeCmd(opts),
		newCertificateCmd(opts),
		newInspectCmd(),
		newServeCmd(opts),
	)
	return cmd
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Analyze an image or video and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := runAnalysis(cmd, opts, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			printVerdict(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the verdict as JSON")
	return cmd
}

func newCertificateCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "certificate FILE",
		Short: "Analyze a file and write its PDF health certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := runAnalysis(cmd, opts, args[0])
			if err != nil {
				return err
			}
			printVerdict(cmd.OutOrStdout(), v)
			if err := processing.Animate(cmd.Context(), processing.ExportStages, opts.cfg.StageScale, progressPrinter(cmd.ErrOrStderr())); err != nil {
				return err
			}
			data, err := certificate.NewRenderer().Render(v, v.Media.Image)
			if err != nil {
				return err
			}
			if output == "" {
				base := filepath.Base(args[0])
				output = strings.TrimSuffix(base, filepath.Ext(base)) + "-certificate.pdf"
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write certificate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Certificate written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output PDF path (defaults to <file>-certificate.pdf)")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect PDF",
		Short: "Print the verdict recorded in a rendered certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			fields, err := certificate.ParseCertificate(data)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", args[0], err)
			}
			printFields(cmd.OutOrStdout(), fields)
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.Address = addr
			}
			srv, err := app.NewServer(opts.cfg)
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func runAnalysis(cmd *cobra.Command, opts *rootOptions, path string) (verdict.Verdict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return verdict.Verdict{}, err
	}
	media, err := intake.New(opts.cfg.MaxFileSize).Accept(filepath.Base(path), intake.TypeByExtension(path), data)
	if err != nil {
		return verdict.Verdict{}, err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Initializing PondVision...")
	return processing.Analyze(cmd.Context(), app.NewGenerator(opts.cfg), media, processing.AnalysisStages, opts.cfg.StageScale, progressPrinter(cmd.ErrOrStderr()))
}

func progressPrinter(w io.Writer) func(processing.Progress) {
	return func(p processing.Progress) {
		fmt.Fprintf(w, "[%3d%%] %s\n", p.Percent, p.Stage)
	}
}

func printVerdict(w io.Writer, v verdict.Verdict) {
	fmt.Fprintf(w, "Status: %s\n", v.Status)
	fmt.Fprintf(w, "Age: %s (%.1f yrs)\n", v.AgeCategory, v.ExactAge)
	fmt.Fprintf(w, "Cause (inferred): %s\n", v.Cause)
	fmt.Fprintf(w, "Health Note: %s\n", v.Notes)
	fmt.Fprintf(w, "Report generated: %s\n", v.Timestamp())
	if v.Dead {
		fmt.Fprintln(w, "*** lights dimmed: this fish did not make it ***")
	}
}

// printFields mirrors printVerdict for a certificate read back from disk.
func printFields(w io.Writer, f certificate.Fields) {
	fmt.Fprintf(w, "Status: %s\n", f.Status)
	fmt.Fprintf(w, "Age: %s (%.1f yrs)\n", f.AgeCategory, f.ExactAge)
	fmt.Fprintf(w, "Cause (inferred): %s\n", f.Cause)
	fmt.Fprintf(w, "Health Note: %s\n", f.Notes)
	fmt.Fprintf(w, "Report generated: %s\n", f.Generated)
	if f.Video {
		fmt.Fprintln(w, "Media: video (no thumbnail)")
	}
}
