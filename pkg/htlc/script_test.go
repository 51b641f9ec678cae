package htlc_test

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/seigneur/takefi-sub000/pkg/htlc"
	"github.com/seigneur/takefi-sub000/pkg/swap"
)

var _ = Describe("Contract compilation", func() {
	var (
		secretHash []byte
		claimant   []byte
		payer      []byte
		network    *chaincfg.Params
	)

	BeforeEach(func() {
		digest := sha256.Sum256([]byte("preimage"))
		secretHash = digest[:]

		claimantKey, err := btcec.NewPrivateKey()
		Expect(err).To(BeNil())
		claimant = claimantKey.PubKey().SerializeCompressed()

		payerKey, err := btcec.NewPrivateKey()
		Expect(err).To(BeNil())
		payer = payerKey.PubKey().SerializeCompressed()

		network = &chaincfg.RegressionNetParams
	})

	It("should produce identical scripts and addresses for identical inputs", func() {
		first, err := htlc.Compile(secretHash, claimant, payer, 144, network)
		Expect(err).To(BeNil())
		second, err := htlc.Compile(secretHash, claimant, payer, 144, network)
		Expect(err).To(BeNil())

		Expect(first.Bytes).To(Equal(second.Bytes))
		Expect(first.WitnessAddress.EncodeAddress()).To(Equal(second.WitnessAddress.EncodeAddress()))
		Expect(first.LegacyAddress.EncodeAddress()).To(Equal(second.LegacyAddress.EncodeAddress()))
	})

	It("should compile the two branch script shape", func() {
		script, err := htlc.Compile(secretHash, claimant, payer, 144, network)
		Expect(err).To(BeNil())
		Expect(script.ClaimOnly).To(BeFalse())

		Expect(script.Bytes[0]).To(Equal(byte(txscript.OP_IF)))
		Expect(script.Bytes[len(script.Bytes)-1]).To(Equal(byte(txscript.OP_ENDIF)))

		disasm, err := txscript.DisasmString(script.Bytes)
		Expect(err).To(BeNil())
		Expect(disasm).To(ContainSubstring("OP_SHA256"))
		Expect(disasm).To(ContainSubstring("OP_CHECKLOCKTIMEVERIFY"))
	})

	It("should compile the claim only variant when no payer key is given", func() {
		script, err := htlc.Compile(secretHash, claimant, nil, 0, network)
		Expect(err).To(BeNil())
		Expect(script.ClaimOnly).To(BeTrue())

		Expect(script.Bytes[0]).To(Equal(byte(txscript.OP_SHA256)))
		disasm, err := txscript.DisasmString(script.Bytes)
		Expect(err).To(BeNil())
		Expect(disasm).NotTo(ContainSubstring("OP_CHECKLOCKTIMEVERIFY"))
		Expect(disasm).NotTo(ContainSubstring("OP_IF"))
	})

	It("should derive different addresses on different networks", func() {
		regtest, err := htlc.Compile(secretHash, claimant, payer, 144, &chaincfg.RegressionNetParams)
		Expect(err).To(BeNil())
		testnet, err := htlc.Compile(secretHash, claimant, payer, 144, &chaincfg.TestNet3Params)
		Expect(err).To(BeNil())
		Expect(regtest.Bytes).To(Equal(testnet.Bytes))
		Expect(regtest.WitnessAddress.EncodeAddress()).NotTo(Equal(testnet.WitnessAddress.EncodeAddress()))
	})

	It("should reject a short secret hash", func() {
		_, err := htlc.Compile(secretHash[:16], claimant, payer, 144, network)
		code, ok := swap.CodeOf(err)
		Expect(ok).To(BeTrue())
		Expect(code).To(Equal(swap.CodeValidation))
	})

	It("should reject timelocks outside the allowed range", func() {
		_, err := htlc.Compile(secretHash, claimant, payer, 0, network)
		Expect(err).To(HaveOccurred())
		_, err = htlc.Compile(secretHash, claimant, payer, htlc.MaxTimelock+1, network)
		Expect(err).To(HaveOccurred())
	})

	It("should reject a malformed claimant key", func() {
		_, err := htlc.Compile(secretHash, claimant[:20], payer, 144, network)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Timelock script numbers", func() {
	DescribeTable("minimal encoding boundaries",
		func(value int64, encoded []byte) {
			Expect(htlc.TimelockBytes(value)).To(Equal(encoded))
			Expect(htlc.ParseTimelockBytes(encoded)).To(Equal(value))
		},
		Entry("zero", int64(0), []byte{}),
		Entry("one", int64(1), []byte{0x01}),
		Entry("127", int64(127), []byte{0x7f}),
		Entry("128 needs a padding byte", int64(128), []byte{0x80, 0x00}),
		Entry("255", int64(255), []byte{0xff, 0x00}),
		Entry("256", int64(256), []byte{0x00, 0x01}),
		Entry("65535", int64(65535), []byte{0xff, 0xff, 0x00}),
	)

	It("should round trip every value in the accepted range boundaries", func() {
		for _, v := range []int64{htlc.MinTimelock, 144, 4096, htlc.MaxTimelock} {
			Expect(htlc.ParseTimelockBytes(htlc.TimelockBytes(v))).To(Equal(v))
		}
	})
})

var _ = Describe("Timelock encoding in compiled scripts", func() {
	var (
		secretHash []byte
		claimant   []byte
		payer      []byte
	)

	BeforeEach(func() {
		digest := sha256.Sum256([]byte("preimage"))
		secretHash = digest[:]
		claimantKey, err := btcec.NewPrivateKey()
		Expect(err).To(BeNil())
		claimant = claimantKey.PubKey().SerializeCompressed()
		payerKey, err := btcec.NewPrivateKey()
		Expect(err).To(BeNil())
		payer = payerKey.PubKey().SerializeCompressed()
	})

	// timelockPush walks the compiled script and returns the opcode and push
	// data of the element following OP_ELSE, which is the timelock.
	timelockPush := func(timelock int64) (byte, []byte) {
		script, err := htlc.Compile(secretHash, claimant, payer, timelock, &chaincfg.RegressionNetParams)
		Expect(err).To(BeNil())

		tokenizer := txscript.MakeScriptTokenizer(0, script.Bytes)
		seenElse := false
		for tokenizer.Next() {
			if seenElse {
				return tokenizer.Opcode(), tokenizer.Data()
			}
			if tokenizer.Opcode() == txscript.OP_ELSE {
				seenElse = true
			}
		}
		Fail("script has no element after OP_ELSE")
		return 0, nil
	}

	It("should render single byte values one through sixteen as small int opcodes", func() {
		op, data := timelockPush(1)
		Expect(op).To(Equal(byte(txscript.OP_1)))
		Expect(data).To(BeEmpty())

		op, data = timelockPush(16)
		Expect(op).To(Equal(byte(txscript.OP_16)))
		Expect(data).To(BeEmpty())
	})

	It("should embed the minimal encoding as a data push above sixteen", func() {
		for _, v := range []int64{17, 127, 128, 144, 255, 256, htlc.MaxTimelock} {
			_, data := timelockPush(v)
			Expect(data).To(Equal(htlc.TimelockBytes(v)), "timelock %v", v)
		}
	})
})
