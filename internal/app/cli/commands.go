package cli

import (
	"github.com/spf13/cobra"

	"xray/internal/config"
)

// CommandType represents the type of CLI command
type CommandType int

// Command type values
const (
	CommandServe CommandType = iota
	CommandInit
	CommandTail
	CommandVersion
	CommandHelp
)

// Options contains the parsed command-line arguments
type Options struct {
	Type       CommandType
	ConfigPath string
	StorePath  string
	Port       int
	FeedName   string
	Topics     []string
	Force      bool
	DryRun     bool
}

// rootFlags holds flag values for the root command
type rootFlags struct {
	version bool
	init    bool
	tail    bool
}

// Parse parses command-line args and returns an Options struct
func Parse(args []string) (*Options, error) {
	result := &Options{
		Type:       CommandServe,
		ConfigPath: config.FileName,
	}

	var flags rootFlags

	root := buildRootCommand(result, &flags)
	root.AddCommand(
		buildServeCommand(result),
		buildInitCommand(result),
		buildTailCommand(result),
		buildVersionCommand(result),
	)

	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		return nil, err
	}

	if flags.version {
		result.Type = CommandVersion
	}

	if flags.init {
		result.Type = CommandInit
	}

	if flags.tail {
		result.Type = CommandTail
	}

	return result, nil
}

// buildRootCommand creates the root cobra command
func buildRootCommand(result *Options, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xray",
		Short: "A local log inspection server for development environments",
		Long: `Xray receives log events from local applications over HTTP, stores
them durably and streams live filtered views to connected consumers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			result.Type = CommandServe
		},
	}

	cmd.PersistentFlags().StringVarP(&result.ConfigPath, "config", "c", config.FileName, "Path to configuration file")
	cmd.PersistentFlags().StringVar(&result.StorePath, "db", "", "Path to the log database (overrides config)")
	cmd.PersistentFlags().IntVarP(&result.Port, "port", "p", 0, "Ingress port (overrides config)")
	cmd.Flags().BoolVarP(&flags.version, "version", "v", false, "Show version information")
	cmd.Flags().BoolVarP(&flags.init, "init", "i", false, "Generate xray.yaml template")
	cmd.Flags().BoolVarP(&flags.tail, "tail", "t", false, "Stream the feed of a running instance")

	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		result.Type = CommandHelp

		_ = cmd.Usage()
	})

	return cmd
}

// buildServeCommand creates the serve subcommand
func buildServeCommand(result *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Start the ingress server and feed",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			result.Type = CommandServe
		},
	}

	return cmd
}

// buildInitCommand creates the init subcommand
func buildInitCommand(result *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "Generate xray.yaml template",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			result.Type = CommandInit
		},
	}

	cmd.Flags().BoolVar(&result.Force, "force", false, "Overwrite an existing xray.yaml")
	cmd.Flags().BoolVar(&result.DryRun, "dry-run", false, "Print the template instead of writing it")

	return cmd
}

// buildTailCommand creates the tail subcommand
func buildTailCommand(result *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tail [topics...]",
		Aliases: []string{"t"},
		Short:   "Stream the feed of a running instance",
		Run: func(cmd *cobra.Command, args []string) {
			result.Type = CommandTail
			result.Topics = args
		},
	}

	cmd.Flags().StringVar(&result.FeedName, "feed", "", "Feed instance name")

	return cmd
}

// buildVersionCommand creates the version subcommand
func buildVersionCommand(result *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			result.Type = CommandVersion
		},
	}

	return cmd
}
