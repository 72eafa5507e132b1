package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kode4food/braid/internal/config"
	"github.com/kode4food/braid/internal/demo"
	"github.com/kode4food/braid/pkg/api"
)

const (
	backendFlag = "backend"
	timeoutFlag = "timeout"

	defaultRunTimeout = time.Minute
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [pairs]",
		Short: "Run the Calculator demo in-process and print its result",
		Long: `Runs the Calculator orchestration, which multiplies each pair of numbers
in a sub-orchestration and collects the products in order. Pairs are given
as JSON, for example '[[6,7],[8,9],[10,11]]'; without an argument the
default pairs are used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if b, _ := cmd.Flags().GetString(backendFlag); b != "" {
				cfg.HistoryBackend = b
			}
			timeout, _ := cmd.Flags().GetDuration(timeoutFlag)

			var pairs []demo.Pair
			if len(args) == 1 {
				if err := json.Unmarshal([]byte(args[0]), &pairs); err != nil {
					return fmt.Errorf("invalid pairs: %w", err)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			out, err := runCalculator(ctx, cfg, pairs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().String(backendFlag, config.BackendMemory,
		"history backend (timebox, redis, memory)",
	)
	cmd.Flags().Duration(timeoutFlag, defaultRunTimeout,
		"how long to wait for the result",
	)
	return cmd
}

func runCalculator(
	ctx context.Context, cfg *config.Config, pairs []demo.Pair,
) (json.RawMessage, error) {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer a.close()
	a.engine.Start()

	var input any
	if len(pairs) > 0 {
		input = pairs
	}
	id, err := a.client.Start(ctx, demo.Calculator, input)
	if err != nil {
		return nil, err
	}
	st, err := a.client.WaitForCompletion(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Status != api.StatusCompleted {
		return nil, fmt.Errorf("instance %s %s: %s", id, st.Status, st.Error)
	}
	return st.Output, nil
}
