package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wes-simulator/internal/persistence"
	"wes-simulator/internal/types"
)

type journalOptions struct {
	failedOnly bool
	command    string
	tail       int
}

// NewJournalCommand 创建 journal 子命令：回看命令日志文件
func NewJournalCommand(_ *RootOptions) *cobra.Command {
	opts := &journalOptions{}
	cmd := &cobra.Command{
		Use:           "journal <path>",
		Short:         "Print a command journal written by a previous run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := persistence.ReadJournal(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "读取命令日志失败", err)
			}
			return printJournal(cmd.OutOrStdout(), filterJournal(records, opts))
		},
	}
	cmd.Flags().BoolVar(&opts.failedOnly, "failed", false, "only show failed commands")
	cmd.Flags().StringVar(&opts.command, "command", "", "only show this command name")
	cmd.Flags().IntVar(&opts.tail, "tail", 0, "only show the last N records")
	return cmd
}

func filterJournal(records []types.CommandRecord, opts *journalOptions) []types.CommandRecord {
	var out []types.CommandRecord
	for _, r := range records {
		if opts.failedOnly && r.OK {
			continue
		}
		if opts.command != "" && r.Command != opts.command {
			continue
		}
		out = append(out, r)
	}
	if opts.tail > 0 && len(out) > opts.tail {
		out = out[len(out)-opts.tail:]
	}
	return out
}

func printJournal(w io.Writer, records []types.CommandRecord) error {
	failed := 0
	for _, r := range records {
		status := "ok"
		if !r.OK {
			status = "FAIL"
			failed++
		}
		line := fmt.Sprintf("%s %-4s %-28s %-22s %-10s %.3fs",
			r.Time.Format("2006-01-02T15:04:05.000"), status, r.Command, r.Driver, r.Target, r.Duration)
		if r.Error != "" {
			line += " " + r.Error
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d records, %d failed\n", len(records), failed)
	return err
}
