package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-harvest/internal/config"
)

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Print the locations a harvest would search",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.ModeLocations); err != nil {
			return err
		}

		locs, err := newResolver(cfg).Resolve(cmd.Context(), selectorFromFlags(cmd, cfg))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, l := range locs {
			_, _ = fmt.Fprintln(out, l)
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d locations\n", len(locs))
		return nil
	},
}

func init() {
	addSelectorFlags(locationsCmd)
	rootCmd.AddCommand(locationsCmd)
}
