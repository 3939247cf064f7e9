// Package cli provides terminal helpers for the giztalk command: output
// formatting (JSON, YAML), a lipgloss theme, and a transcript printer that
// turns conversation state snapshots into terminal lines.
//
// Example usage:
//
//	cli.Output(result, cli.OutputOptions{Format: cli.FormatJSON})
//
//	tr := cli.NewTranscript(cli.NewStyles(cli.DefaultTheme))
//	for st := range updates {
//	    for _, line := range tr.Update(st) {
//	        fmt.Println(line)
//	    }
//	}
package cli
