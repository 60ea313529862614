package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget the stored user so the next run starts fresh",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		id, err := st.Load(ctx)
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No stored user.")
			return nil
		}
		if err := st.Clear(ctx); err != nil {
			return err
		}
		logger.Info().Str("user_id", id).Msg("[store] cleared")
		fmt.Fprintln(cmd.OutOrStdout(), "Stored user forgotten.")
		return nil
	},
}
