package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/shapedetect/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default configuration to a file",
		Long: `Write the default configuration as YAML. Without a file argument the
configuration is written to shapedetect.yaml in the current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Long: `Print the configuration after merging defaults, the config file,
environment variables and flags.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}

	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "List the directories searched for a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range config.GetConfigSearchPaths() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	configCmd.AddCommand(initCmd, showCmd, pathsCmd)
	return configCmd
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	filename := config.ConfigFileName + ".yaml"
	if len(args) == 1 {
		filename = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(filename); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", filename)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", filename, err)
	}

	if err := config.GenerateDefaultConfigFile(filename); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", filename)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	data, err := yaml.Marshal(GetConfig())
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if used := GetConfigLoader().GetConfigFileUsed(); used != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n", used)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
