// Package takefi is the operator CLI for the swap coordinator. It works
// directly against the swap store and the chain, for rescue operations the
// HTTP API deliberately does not expose.
package takefi

import (
	"github.com/spf13/cobra"

	"github.com/seigneur/takefi-sub000/utils"
)

func Run() error {
	var cmd = &cobra.Command{
		Use: "takefi - swap coordinator operator tooling",
		Run: func(c *cobra.Command, args []string) {
			c.HelpFunc()(c, args)
		},
		DisableAutoGenTag: true,
	}

	config, err := utils.LoadConfig(utils.DefaultConfigPath())
	if err != nil {
		return err
	}
	keys, err := utils.LoadKeys(config)
	if err != nil {
		return err
	}

	cmd.AddCommand(Accounts(config, keys))
	cmd.AddCommand(Swaps(config))
	cmd.AddCommand(Claim(config, keys))
	cmd.AddCommand(Refund(config, keys))
	return cmd.Execute()
}
