package takefi

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seigneur/takefi-sub000/pkg/btc"
	"github.com/seigneur/takefi-sub000/pkg/btctx"
	"github.com/seigneur/takefi-sub000/utils"
)

// Claim spends the preimage branch of a swap's contract output and pays it
// to the given address. Used by the market maker operator once the preimage
// has been released.
func Claim(config utils.Config, keys utils.Keys) *cobra.Command {
	var (
		swapID   string
		to       string
		preimage string
		account  uint32
	)

	var cmd = &cobra.Command{
		Use:   "claim",
		Short: "Claim a contract output with its preimage",
		Run: func(c *cobra.Command, args []string) {
			spend, err := buildSpend(config, keys, swapID, to, preimage, account, false)
			if err != nil {
				cobra.CheckErr(err)
				return
			}
			color.Green("claim broadcast: %v", spend)
		},
		DisableAutoGenTag: true,
	}

	cmd.Flags().StringVar(&swapID, "swap-id", "", "swap id")
	cmd.MarkFlagRequired("swap-id")
	cmd.Flags().StringVar(&to, "to", "", "payout address")
	cmd.MarkFlagRequired("to")
	cmd.Flags().StringVar(&preimage, "preimage", "", "preimage hex, taken from the swap record when omitted")
	cmd.Flags().Uint32Var(&account, "account", 0, "account")
	return cmd
}

// Refund spends the timelock branch back to the payer once the contract has
// expired.
func Refund(config utils.Config, keys utils.Keys) *cobra.Command {
	var (
		swapID  string
		to      string
		account uint32
	)

	var cmd = &cobra.Command{
		Use:   "refund",
		Short: "Refund an expired contract output",
		Run: func(c *cobra.Command, args []string) {
			spend, err := buildSpend(config, keys, swapID, to, "", account, true)
			if err != nil {
				cobra.CheckErr(err)
				return
			}
			color.Green("refund broadcast: %v", spend)
		},
		DisableAutoGenTag: true,
	}

	cmd.Flags().StringVar(&swapID, "swap-id", "", "swap id")
	cmd.MarkFlagRequired("swap-id")
	cmd.Flags().StringVar(&to, "to", "", "payout address")
	cmd.MarkFlagRequired("to")
	cmd.Flags().Uint32Var(&account, "account", 0, "account")
	return cmd
}

func buildSpend(config utils.Config, keys utils.Keys, swapID, to, preimageHex string, account uint32, refund bool) (string, error) {
	ctx := context.Background()

	network, err := utils.NetworkParams(config.Network)
	if err != nil {
		return "", err
	}
	logger, err := utils.NewLogger(true)
	if err != nil {
		return "", err
	}
	str, err := utils.LoadDB(config)
	if err != nil {
		return "", err
	}

	record, err := str.Get(ctx, swapID)
	if err != nil {
		return "", err
	}
	script, err := hex.DecodeString(record.ScriptHex)
	if err != nil {
		return "", fmt.Errorf("stored script is unreadable: %w", err)
	}
	if preimageHex == "" {
		preimageHex = record.Preimage
	}

	key, err := keys.GetKey(utils.PurposeBitcoin, account, 0)
	if err != nil {
		return "", err
	}

	client := btc.NewClient(config.BtcAPI, config.BtcNodeRPC, logger)
	address, err := btcutil.DecodeAddress(record.WitnessAddress, network)
	if err != nil {
		return "", err
	}
	utxos, err := client.GetUTXOs(ctx, address)
	if err != nil {
		return "", err
	}
	if len(utxos) == 0 {
		return "", fmt.Errorf("contract address %v holds no spendable output", record.WitnessAddress)
	}
	utxo := utxos[0]
	for _, candidate := range utxos {
		if candidate.Amount > utxo.Amount {
			utxo = candidate
		}
	}

	builder := btctx.NewBuilder(network, client, "medium", logger)
	var spend btctx.Spend
	if refund {
		spend, err = builder.BuildRefundSpend(ctx, script, utxo, to, key.BtcKey(), record.Timelock)
	} else {
		preimage, decodeErr := hex.DecodeString(preimageHex)
		if decodeErr != nil {
			return "", fmt.Errorf("malformed preimage hex: %w", decodeErr)
		}
		spend, err = builder.BuildClaimSpend(ctx, script, preimage, utxo, to, key.BtcKey())
	}
	if err != nil {
		return "", err
	}

	return client.SubmitTx(ctx, spend.Tx)
}
