package takefi

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seigneur/takefi-sub000/pkg/swap"
	"github.com/seigneur/takefi-sub000/utils"
)

// Swaps lists every persisted swap with its status, straight from the store.
func Swaps(config utils.Config) *cobra.Command {
	var status string

	var cmd = &cobra.Command{
		Use:   "swaps",
		Short: "List swaps in the store",
		Run: func(c *cobra.Command, args []string) {
			str, err := utils.LoadDB(config)
			if err != nil {
				cobra.CheckErr(err)
				return
			}
			records, err := str.List(context.Background())
			if err != nil {
				cobra.CheckErr(err)
				return
			}
			for _, record := range records {
				if status != "" && string(record.Status) != status {
					continue
				}
				printSwap(record)
			}
		},
		DisableAutoGenTag: true,
	}

	cmd.Flags().StringVar(&status, "status", "", "only show swaps with this status")
	return cmd
}

func printSwap(record swap.Swap) {
	line := "%v  %v  %v sats  %v"
	switch {
	case record.Status == swap.StatusCompleted:
		color.Green(line, record.ID, record.Status, record.AmountSats, record.WitnessAddress)
	case record.Status.Terminal():
		color.Red(line, record.ID, record.Status, record.AmountSats, record.WitnessAddress)
	default:
		color.Yellow(line, record.ID, record.Status, record.AmountSats, record.WitnessAddress)
	}
}
