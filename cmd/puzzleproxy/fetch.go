package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/puzzle-proxy/internal/app"
	"github.com/JakeFAU/puzzle-proxy/internal/puzzle"
)

func newFetchCmd(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Resolve one date and print the puzzle JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := puzzle.ParseDateKey(date)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer a.Close()

			result, err := a.Resolver.Resolve(cmd.Context(), key)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(result.Document.Bytes())); err != nil {
				return fmt.Errorf("write document: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "puzzle date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
