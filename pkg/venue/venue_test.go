package venue_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/seigneur/takefi-sub000/pkg/swap"
	"github.com/seigneur/takefi-sub000/pkg/venue"
)

func validOrder() venue.Order {
	return venue.Order{
		SellToken:           common.HexToAddress("0x01"),
		BuyToken:            common.HexToAddress("0x02"),
		Receiver:            common.HexToAddress("0x03"),
		SellAmount:          "1000000000000000000",
		BuyAmount:           "2000000",
		FeeAmount:           "1000",
		ValidTo:             1900000000,
		Kind:                venue.KindSell,
		PartiallyFillable:   true,
		SellTokenSource:     venue.SourceERC20,
		BuyTokenDestination: venue.DestinationERC20,
		SigningScheme:       venue.SchemeEthSign,
	}
}

var _ = Describe("Tagged order fields", func() {
	It("should accept the known tags", func() {
		Expect(venue.SchemeEIP712.Validate()).To(Succeed())
		Expect(venue.SchemeEthSign.Validate()).To(Succeed())
		Expect(venue.SchemePreSign.Validate()).To(Succeed())
		Expect(venue.KindSell.Validate()).To(Succeed())
		Expect(venue.KindBuy.Validate()).To(Succeed())
		Expect(venue.SourceERC20.Validate()).To(Succeed())
		Expect(venue.SourceExternal.Validate()).To(Succeed())
		Expect(venue.SourceInternal.Validate()).To(Succeed())
		Expect(venue.DestinationERC20.Validate()).To(Succeed())
		Expect(venue.DestinationInternal.Validate()).To(Succeed())
	})

	It("should reject unknown tags with validation errors", func() {
		for _, err := range []error{
			venue.SigningScheme("eip1271").Validate(),
			venue.OrderKind("short").Validate(),
			venue.SellTokenSource("wallet").Validate(),
			venue.BuyTokenDestination("wallet").Validate(),
		} {
			Expect(err).To(HaveOccurred())
			code, ok := swap.CodeOf(err)
			Expect(ok).To(BeTrue())
			Expect(code).To(Equal(swap.CodeValidation))
		}
	})

	It("should validate whole orders", func() {
		Expect(validOrder().Validate()).To(Succeed())

		bad := validOrder()
		bad.SellAmount = ""
		Expect(bad.Validate()).To(HaveOccurred())

		bad = validOrder()
		bad.Kind = "borrow"
		Expect(bad.Validate()).To(HaveOccurred())
	})

	It("should mark filled, cancelled and expired as terminal", func() {
		Expect(venue.OrderFilled.Terminal()).To(BeTrue())
		Expect(venue.OrderCancelled.Terminal()).To(BeTrue())
		Expect(venue.OrderExpired.Terminal()).To(BeTrue())
		Expect(venue.OrderOpen.Terminal()).To(BeFalse())
		Expect(venue.OrderPartiallyFilled.Terminal()).To(BeFalse())
	})
})

var _ = Describe("Order signing", func() {
	It("should produce a recoverable ethsign signature", func() {
		key, err := crypto.GenerateKey()
		Expect(err).To(BeNil())

		signed, err := venue.SignOrder(validOrder(), key)
		Expect(err).To(BeNil())
		Expect(signed.SigningScheme).To(Equal(venue.SchemeEthSign))
		Expect(signed.From).To(Equal(crypto.PubkeyToAddress(key.PublicKey)))

		sig, err := hexutil.Decode(signed.Signature)
		Expect(err).To(BeNil())
		Expect(sig).To(HaveLen(65))
		Expect(sig[64]).To(Or(Equal(byte(27)), Equal(byte(28))))

		sig[64] -= 27
		digest := accounts.TextHash(venue.OrderDigest(signed))
		pubkey, err := crypto.SigToPub(digest, sig)
		Expect(err).To(BeNil())
		Expect(crypto.PubkeyToAddress(*pubkey)).To(Equal(signed.From))
	})

	It("should change the digest when economic fields change", func() {
		order := validOrder()
		digest := venue.OrderDigest(order)
		order.BuyAmount = "2000001"
		Expect(venue.OrderDigest(order)).NotTo(Equal(digest))
	})
})

var _ = Describe("Venue client", func() {
	var (
		server *httptest.Server
		client venue.Client
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mux := http.NewServeMux()
		mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
			var req venue.QuoteRequest
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req.SellAmount.Cmp(big.NewInt(0))).To(Equal(1))
			fmt.Fprint(w, `{"quote":{"sellAmount":"1000","buyAmount":"2000","feeAmount":"10","validTo":1900000000}}`)
		})
		mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
			var order venue.Order
			Expect(json.NewDecoder(r.Body).Decode(&order)).To(Succeed())
			fmt.Fprint(w, `"order-123"`)
		})
		mux.HandleFunc("/orders/order-123", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				fmt.Fprint(w, `{"uid":"order-123","status":"partiallyFilled","executedSellAmount":"500","executedBuyAmount":"900"}`)
			case http.MethodDelete:
				w.WriteHeader(http.StatusOK)
			}
		})
		mux.HandleFunc("/orders/gone", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "order not found", http.StatusNotFound)
		})
		server = httptest.NewServer(mux)
		client = venue.NewClient(server.URL, "")
	})

	AfterEach(func() {
		server.Close()
	})

	It("should fetch quotes", func() {
		quote, err := client.GetQuote(ctx, venue.QuoteRequest{SellAmount: big.NewInt(1000)})
		Expect(err).To(BeNil())
		Expect(quote.SellAmount).To(Equal("1000"))
		Expect(quote.BuyAmount).To(Equal("2000"))
		Expect(quote.ValidTo).To(Equal(int64(1900000000)))
	})

	It("should submit orders and return the venue id", func() {
		key, err := crypto.GenerateKey()
		Expect(err).To(BeNil())
		signed, err := venue.SignOrder(validOrder(), key)
		Expect(err).To(BeNil())

		orderID, err := client.SubmitOrder(ctx, signed)
		Expect(err).To(BeNil())
		Expect(orderID).To(Equal("order-123"))
	})

	It("should reject invalid orders before they hit the wire", func() {
		bad := validOrder()
		bad.SigningScheme = "stamp"
		_, err := client.SubmitOrder(ctx, bad)
		Expect(err).To(HaveOccurred())
		code, ok := swap.CodeOf(err)
		Expect(ok).To(BeTrue())
		Expect(code).To(Equal(swap.CodeValidation))
	})

	It("should read order states", func() {
		state, err := client.GetOrderStatus(ctx, "order-123")
		Expect(err).To(BeNil())
		Expect(state.Status).To(Equal(venue.OrderPartiallyFilled))
		Expect(state.ExecutedSellAmount).To(Equal("500"))
		Expect(state.ExecutedBuyAmount).To(Equal("900"))
	})

	It("should cancel orders", func() {
		Expect(client.CancelOrder(ctx, "order-123")).To(Succeed())
	})

	It("should classify venue failures", func() {
		_, err := client.GetOrderStatus(ctx, "gone")
		Expect(err).To(HaveOccurred())
		code, ok := swap.CodeOf(err)
		Expect(ok).To(BeTrue())
		Expect(code).To(Equal(swap.CodeVenue))
	})
})
