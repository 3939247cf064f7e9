package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/giztalk/pkg/cli"
	"github.com/haivivi/giztalk/pkg/styles"
)

var stylesOutput string

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List conversation styles",
	Long: `List the conversation styles a call or chat can use.

Examples:
  giztalk styles
  giztalk styles -o json
  giztalk styles show counseling`,
	RunE: func(cmd *cobra.Command, args []string) error {
		all := styles.All()
		if stylesOutput != "" {
			format, err := cli.ParseFormat(stylesOutput)
			if err != nil {
				return err
			}
			return cli.Output(all, cli.OutputOptions{Format: format, Writer: cmd.OutOrStdout()})
		}
		rows := make([][]string, 0, len(all))
		for _, s := range all {
			rows = append(rows, []string{s.Emoji, s.ID, s.Label, s.Summary})
		}
		st := cli.NewStyles(cli.DefaultTheme)
		fmt.Fprintln(cmd.OutOrStdout(), st.Table([]string{"", "ID", "이름", "설명"}, rows))
		return nil
	},
}

var stylesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a style's system prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ok := styles.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown style %q", args[0])
		}
		st := cli.NewStyles(cli.DefaultTheme)
		fmt.Fprintln(cmd.OutOrStdout(), st.Title.Render(s.Emoji+" "+s.Label))
		fmt.Fprintln(cmd.OutOrStdout(), st.Help.Render(s.Description))
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), s.Prompt)
		return nil
	},
}

func init() {
	stylesCmd.Flags().StringVarP(&stylesOutput, "output", "o", "", "output format (yaml, json); default is a table")
	stylesCmd.AddCommand(stylesShowCmd)
	rootCmd.AddCommand(stylesCmd)
}
