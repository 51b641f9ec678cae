package takefi

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seigneur/takefi-sub000/utils"
)

// Accounts prints the operator's derived addresses on both legs.
func Accounts(config utils.Config, keys utils.Keys) *cobra.Command {
	var (
		account uint32
		count   uint32
	)

	var cmd = &cobra.Command{
		Use:   "accounts",
		Short: "List derived operator addresses",
		Run: func(c *cobra.Command, args []string) {
			network, err := utils.NetworkParams(config.Network)
			if err != nil {
				cobra.CheckErr(err)
				return
			}
			for selector := uint32(0); selector < count; selector++ {
				btcKey, err := keys.GetKey(utils.PurposeBitcoin, account, selector)
				if err != nil {
					cobra.CheckErr(err)
					return
				}
				btcAddr, err := btcKey.WitnessAddress(network)
				if err != nil {
					cobra.CheckErr(err)
					return
				}
				venueKey, err := keys.GetKey(utils.PurposeVenue, account, selector)
				if err != nil {
					cobra.CheckErr(err)
					return
				}
				evmAddr, err := venueKey.EvmAddress()
				if err != nil {
					cobra.CheckErr(err)
					return
				}
				color.Blue("account %v selector %v", account, selector)
				color.White("  btc:   %v", btcAddr.EncodeAddress())
				color.White("  venue: %v", evmAddr.Hex())
			}
		},
		DisableAutoGenTag: true,
	}

	cmd.Flags().Uint32Var(&account, "account", 0, "account")
	cmd.Flags().Uint32Var(&count, "count", 1, "number of selectors to derive")
	return cmd
}
