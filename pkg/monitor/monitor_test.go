package monitor_test

import (
	"context"
	"encoding/hex"
	"errors"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/btc"
	"github.com/seigneur/takefi-sub000/pkg/mock"
	"github.com/seigneur/takefi-sub000/pkg/monitor"
)

var _ = Describe("Funding watches", func() {
	var (
		chain   *mock.ChainClient
		mon     *monitor.Monitor
		address btcutil.Address
		ctx     context.Context
	)

	BeforeEach(func() {
		chain = mock.NewChainClient()
		mon = monitor.New(chain, zap.NewNop(), 20*time.Millisecond)
		var err error
		address, err = btcutil.DecodeAddress("bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080", &chaincfg.RegressionNetParams)
		Expect(err).To(BeNil())
		ctx = context.Background()
	})

	AfterEach(func() {
		mon.Stop()
	})

	It("should deliver exactly one funded outcome", func() {
		chain.FuncGetUTXOs = func(context.Context, btcutil.Address) ([]btc.UTXO, error) {
			return []btc.UTXO{{TxID: "aa", Amount: 60000, Confirmed: true, BlockHeight: 10, Confirmations: 2}}, nil
		}

		outcomes := make(chan monitor.Outcome, 4)
		err := mon.Watch(ctx, "swap-1", address, 50000, time.Second, func(o monitor.Outcome) {
			outcomes <- o
		})
		Expect(err).To(BeNil())

		var outcome monitor.Outcome
		Eventually(outcomes, "2s").Should(Receive(&outcome))
		Expect(outcome.Funded).To(BeTrue())
		Expect(outcome.TxID).To(Equal("aa"))
		Expect(outcome.ReceivedSats).To(Equal(int64(60000)))

		Consistently(outcomes, "200ms").ShouldNot(Receive())
		Eventually(mon.Active, "1s").Should(BeEmpty())
	})

	It("should aggregate several utxos against the expected amount", func() {
		chain.FuncGetUTXOs = func(context.Context, btcutil.Address) ([]btc.UTXO, error) {
			return []btc.UTXO{
				{TxID: "aa", Amount: 30000, Confirmed: true, BlockHeight: 10},
				{TxID: "bb", Amount: 30000, Confirmed: false},
			}, nil
		}

		outcomes := make(chan monitor.Outcome, 1)
		Expect(mon.Watch(ctx, "swap-1", address, 50000, time.Second, func(o monitor.Outcome) {
			outcomes <- o
		})).To(Succeed())

		var outcome monitor.Outcome
		Eventually(outcomes, "2s").Should(Receive(&outcome))
		Expect(outcome.ReceivedSats).To(Equal(int64(60000)))
		Expect(outcome.TxID).To(Equal("bb"))
	})

	It("should keep polling through transient chain errors", func() {
		var calls int32
		chain.FuncGetUTXOs = func(context.Context, btcutil.Address) ([]btc.UTXO, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, errors.New("boom")
			}
			return []btc.UTXO{{TxID: "aa", Amount: 60000, Confirmed: true}}, nil
		}

		outcomes := make(chan monitor.Outcome, 1)
		Expect(mon.Watch(ctx, "swap-1", address, 50000, time.Second, func(o monitor.Outcome) {
			outcomes <- o
		})).To(Succeed())

		Eventually(outcomes, "2s").Should(Receive())
	})

	It("should time out an unfunded watch", func() {
		outcomes := make(chan monitor.Outcome, 1)
		Expect(mon.Watch(ctx, "swap-1", address, 50000, 80*time.Millisecond, func(o monitor.Outcome) {
			outcomes <- o
		})).To(Succeed())

		var outcome monitor.Outcome
		Eventually(outcomes, "2s").Should(Receive(&outcome))
		Expect(outcome.TimedOut).To(BeTrue())
		Expect(outcome.Funded).To(BeFalse())
	})

	It("should refuse a duplicate watch for the same swap", func() {
		Expect(mon.Watch(ctx, "swap-1", address, 1, time.Second, func(monitor.Outcome) {})).To(Succeed())
		Expect(mon.Watch(ctx, "swap-1", address, 1, time.Second, func(monitor.Outcome) {})).To(HaveOccurred())
	})

	It("should cancel silently", func() {
		outcomes := make(chan monitor.Outcome, 1)
		Expect(mon.Watch(ctx, "swap-1", address, 50000, time.Minute, func(o monitor.Outcome) {
			outcomes <- o
		})).To(Succeed())

		mon.Cancel("swap-1")
		Consistently(outcomes, "200ms").ShouldNot(Receive())
		Eventually(mon.Active, "1s").Should(BeEmpty())

		// Cancelling again or cancelling the unknown is a no-op.
		mon.Cancel("swap-1")
		mon.Cancel("unknown")
	})
})

var _ = Describe("Preimage extraction", func() {
	var (
		chain   *mock.ChainClient
		mon     *monitor.Monitor
		address btcutil.Address
	)

	BeforeEach(func() {
		chain = mock.NewChainClient()
		mon = monitor.New(chain, zap.NewNop(), time.Second)
		var err error
		address, err = btcutil.DecodeAddress("bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080", &chaincfg.RegressionNetParams)
		Expect(err).To(BeNil())
	})

	It("should pull the preimage out of a claim witness", func() {
		preimage := make([]byte, 32)
		for i := range preimage {
			preimage[i] = byte(i)
		}
		preimageHex := hex.EncodeToString(preimage)

		chain.FuncGetAddressTxs = func(context.Context, btcutil.Address) ([]btc.Transaction, error) {
			return []btc.Transaction{{
				TxID: "spend",
				VINs: []btc.VIN{{
					Prevout: &btc.Prevout{ScriptPubKeyAddress: address.EncodeAddress()},
					Witness: []string{"30440220aa", preimageHex, "01", "63a820bb"},
				}},
			}}, nil
		}

		got, err := mon.ExtractPreimage(context.Background(), address)
		Expect(err).To(BeNil())
		Expect(got).To(Equal(preimageHex))
	})

	It("should ignore refund witnesses", func() {
		chain.FuncGetAddressTxs = func(context.Context, btcutil.Address) ([]btc.Transaction, error) {
			return []btc.Transaction{{
				TxID: "refund",
				VINs: []btc.VIN{{
					Prevout: &btc.Prevout{ScriptPubKeyAddress: address.EncodeAddress()},
					Witness: []string{"30440220aa", "", "63a820bb"},
				}},
			}}, nil
		}

		got, err := mon.ExtractPreimage(context.Background(), address)
		Expect(err).To(BeNil())
		Expect(got).To(BeEmpty())
	})

	It("should return empty when the contract is unspent", func() {
		got, err := mon.ExtractPreimage(context.Background(), address)
		Expect(err).To(BeNil())
		Expect(got).To(BeEmpty())
	})
})
