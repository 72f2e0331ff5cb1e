// Command apkmerge merges a base archive and its split archives into one
// archive that installs on its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"apkmerge/internal/apktool"
	"apkmerge/internal/config"
	"apkmerge/internal/logging"
	"apkmerge/internal/pipeline"
)

// cli holds flag values and what PersistentPreRunE derives from them.
type cli struct {
	configPath        string
	verbose           bool
	disableStyleDedup bool
	apktoolJar        string
	apktoolBinary     string
	java              string
	jobs              int
	timeout           time.Duration
	placeholderPrefix string
	summary           bool

	cfg    *config.Config
	logger *zap.Logger

	// newTool is replaced in tests.
	newTool func(*config.Config, *zap.Logger) apktool.Tool
}

func newCLI() *cli {
	return &cli{
		newTool: func(cfg *config.Config, logger *zap.Logger) apktool.Tool {
			return apktool.NewRunner(cfg, nil, logger)
		},
	}
}

func (c *cli) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apkmerge <package-identifier> <input-folder> <destination>",
		Short: "Merge a split application into a single archive",
		Long: `Decompiles the base archive and every split archive found in the input
folder, reconciles their resource identifiers, merges the split contents into
the base and rebuilds one archive at the destination.

The base is the archive whose file name contains the package identifier.
A folder holding a single archive is copied to the destination unchanged.

Example:
  apkmerge com.example.app ./pulled ./com.example.app-merged.apk`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync(c.logger)
		},
		RunE: c.run,
	}

	f := cmd.Flags()
	f.StringVar(&c.configPath, "config", "apkmerge.yaml", "Configuration file (missing file means defaults)")
	f.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging and rewrite diffs")
	f.BoolVar(&c.disableStyleDedup, "disable-style-dedup-hack", false, "Keep duplicate <item> entries in res/values/styles.xml")
	f.StringVar(&c.apktoolJar, "apktool-jar", "", "apktool jar, run through java -jar")
	f.StringVar(&c.apktoolBinary, "apktool", "", "apktool executable (used when no jar is given)")
	f.StringVar(&c.java, "java", "", "Java executable used with --apktool-jar")
	f.IntVar(&c.jobs, "jobs", 0, "Archives decompiled concurrently")
	f.DurationVar(&c.timeout, "timeout", 0, "Timeout for each apktool invocation")
	f.StringVar(&c.placeholderPrefix, "placeholder-prefix", "", "Prefix apktool gives to unrecovered resource names")
	f.BoolVar(&c.summary, "summary", false, "Print a per-split summary table when done")

	return cmd
}

// setup loads configuration, applies flags on top and builds the logger.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg

	c.logger, err = logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: c.verbose,
	})
	return err
}

// applyFlags copies explicitly set flags into cfg.
func (c *cli) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("apktool") {
		cfg.Apktool.Binary = c.apktoolBinary
		if !f.Changed("apktool-jar") {
			cfg.Apktool.Jar = ""
		}
	}
	if f.Changed("apktool-jar") {
		cfg.Apktool.Jar = c.apktoolJar
	}
	if f.Changed("java") {
		cfg.Apktool.Java = c.java
	}
	if f.Changed("jobs") {
		cfg.Merge.Jobs = c.jobs
	}
	if f.Changed("timeout") {
		cfg.Execution.Timeout = c.timeout.String()
	}
	if f.Changed("placeholder-prefix") {
		cfg.Merge.PlaceholderPrefix = c.placeholderPrefix
	}
	if c.disableStyleDedup {
		cfg.Merge.StyleDedup = false
	}
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := logging.For(c.logger, logging.CategoryBoot)
	boot.Debug("configuration loaded",
		zap.String("config", c.configPath),
		zap.Bool("apktool_jar", c.cfg.Apktool.UsesJar()),
		zap.Int("jobs", c.cfg.Merge.Jobs),
		zap.String("placeholder_prefix", c.cfg.Merge.PlaceholderPrefix))

	p, err := pipeline.New(c.cfg, c.newTool(c.cfg, c.logger), c.logger)
	if err != nil {
		return err
	}

	report, err := p.Run(ctx, pipeline.Options{
		Package:     args[0],
		InputDir:    args[1],
		Destination: args[2],
		StyleDedup:  c.cfg.Merge.StyleDedup,
		DiffTrace:   c.verbose,
	})
	if c.summary && report != nil {
		fmt.Fprint(cmd.OutOrStdout(), renderSummary(report))
	}
	return err
}

func main() {
	if err := newCLI().command().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "apkmerge:", err)
		os.Exit(1)
	}
}
