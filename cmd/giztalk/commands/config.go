package commands

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/pkg/cli"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit the configuration file",
	Long: `Show and edit the giztalk configuration file.

Keys are dotted paths into the YAML file. Values are parsed as YAML
scalars, so numbers and booleans keep their type.

Examples:
  giztalk config path
  giztalk config show -o json
  giztalk config set openai.api_key sk-xxx
  giztalk config set credits.per_5000_won 12000
  giztalk config get server.addr
  giztalk config edit`,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		format, err := cli.ParseFormat(configOutput)
		if err != nil {
			return err
		}
		return cli.Output(cfg.Redacted(), cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		v, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one value and save the file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "%s saved to %s", args[0], cfg.Path)
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
			if err := cfg.Save(); err != nil {
				return err
			}
		}
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}
		c := exec.Command(editor, cfg.Path)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

func init() {
	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", "yaml", "output format (yaml, json)")

	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}
