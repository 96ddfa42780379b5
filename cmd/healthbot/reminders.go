package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect stored reminders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list [sender]",
		Short: "List a sender's reminders in the order they were set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Reminders.Store == "memory" {
				return fmt.Errorf("reminders.store is \"memory\"; nothing is persisted to list")
			}
			store, err := openReminderStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(context.Background(), args[0])
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no reminders")
				return nil
			}

			loc := cfg.General.Location()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tTASK\tAT\tLANG\tCHANNEL\tNOTIFIED")
			for i, r := range list {
				notified := "-"
				if r.Notified() {
					notified = r.NotifiedAt.In(loc).Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, r.Task, r.At.In(loc).Format("2006-01-02 15:04"), r.Language, r.Channel, notified)
			}
			return w.Flush()
		},
	})
	return cmd
}
