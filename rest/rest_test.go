package rest_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/dgrijalva/jwt-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/seigneur/takefi-sub000/pkg/mock"
	"github.com/seigneur/takefi-sub000/pkg/monitor"
	"github.com/seigneur/takefi-sub000/pkg/orchestrator"
	"github.com/seigneur/takefi-sub000/pkg/store"
	"github.com/seigneur/takefi-sub000/pkg/swap"
	"github.com/seigneur/takefi-sub000/pkg/tracker"
	"github.com/seigneur/takefi-sub000/rest"
)

const jwtSecret = "test-secret"

var _ = Describe("HTTP surface", func() {
	var (
		router *gin.Engine
		orch   *orchestrator.Orchestrator
		db     store.Store
	)

	validBody := func() map[string]any {
		mmKey, err := btcec.NewPrivateKey()
		Expect(err).To(BeNil())
		return map[string]any{
			"userBtcAddress": "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080",
			"userEthWallet":  "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			"mmPubkey":       hex.EncodeToString(mmKey.PubKey().SerializeCompressed()),
			"btcAmount":      100000,
		}
	}

	do := func(method, path string, body any, header http.Header) *httptest.ResponseRecorder {
		var payload []byte
		if body != nil {
			var err error
			payload, err = json.Marshal(body)
			Expect(err).To(BeNil())
		}
		req := httptest.NewRequest(method, path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		for key, values := range header {
			req.Header[key] = values
		}
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		return recorder
	}

	decode := func(recorder *httptest.ResponseRecorder) map[string]any {
		var out map[string]any
		Expect(json.Unmarshal(recorder.Body.Bytes(), &out)).To(Succeed())
		return out
	}

	errorCode := func(recorder *httptest.ResponseRecorder) string {
		body := decode(recorder)
		detail, ok := body["error"].(map[string]any)
		Expect(ok).To(BeTrue())
		return detail["code"].(string)
	}

	createSwap := func() string {
		recorder := do("POST", "/create-preimage", validBody(), nil)
		Expect(recorder.Code).To(Equal(http.StatusCreated))
		return decode(recorder)["swapId"].(string)
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		chain := mock.NewChainClient()
		venueClient := mock.NewVenueClient()
		db = store.NewMemoryStore()

		signer, err := crypto.GenerateKey()
		Expect(err).To(BeNil())

		mon := monitor.New(chain, zap.NewNop(), time.Second)
		trk := tracker.New(venueClient, zap.NewNop(), time.Second, time.Minute)
		orch = orchestrator.New(orchestrator.Config{
			Network:       &chaincfg.RegressionNetParams,
			SellToken:     common.HexToAddress("0x01"),
			Tokens:        map[string]common.Address{"USDC": common.HexToAddress("0x02")},
			DefaultToken:  "USDC",
			SatScale:      big.NewInt(1),
			OrderValidity: 30 * time.Minute,
		}, db, chain, mon, trk, venueClient, signer, nil, zap.NewNop())

		router = rest.NewServer(orch, jwtSecret, zap.NewNop()).Router()
	})

	AfterEach(func() {
		orch.Stop()
	})

	It("should report health", func() {
		recorder := do("GET", "/health", nil, nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(decode(recorder)["status"]).To(Equal("ok"))
	})

	Describe("POST /create-preimage", func() {
		It("should create a swap", func() {
			recorder := do("POST", "/create-preimage", validBody(), nil)
			Expect(recorder.Code).To(Equal(http.StatusCreated))

			body := decode(recorder)
			Expect(body["swapId"]).NotTo(BeEmpty())
			Expect(body["status"]).To(Equal("pending"))
			Expect(body["htlcAddress"]).To(HavePrefix("bcrt1"))
			Expect(body["hash"]).To(HaveLen(64))
			// Regtest responses include the preimage.
			Expect(body["preimage"]).To(HaveLen(64))
		})

		It("should reject a body missing required fields", func() {
			body := validBody()
			delete(body, "mmPubkey")
			recorder := do("POST", "/create-preimage", body, nil)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(errorCode(recorder)).To(Equal(string(swap.CodeValidation)))
		})

		It("should reject malformed JSON", func() {
			req := httptest.NewRequest("POST", "/create-preimage", bytes.NewReader([]byte("{nope")))
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, req)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("should surface validation failures with the typed envelope", func() {
			body := validBody()
			body["userBtcAddress"] = "not-an-address"
			recorder := do("POST", "/create-preimage", body, nil)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(errorCode(recorder)).To(Equal(string(swap.CodeValidation)))
		})
	})

	Describe("GET /swap/:swapId", func() {
		It("should return the swap record", func() {
			swapID := createSwap()
			recorder := do("GET", "/swap/"+swapID, nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(decode(recorder)["swapId"]).To(Equal(swapID))
		})

		It("should return 404 for an unknown swap", func() {
			recorder := do("GET", "/swap/missing", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusNotFound))
			Expect(errorCode(recorder)).To(Equal(string(swap.CodeNotFound)))
		})
	})

	Describe("POST /trigger-swap/:swapId", func() {
		It("should reject a trigger without a funding transaction", func() {
			swapID := createSwap()
			recorder := do("POST", "/trigger-swap/"+swapID, nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(errorCode(recorder)).To(Equal(string(swap.CodeValidation)))
		})

		It("should return 410 for an expired swap", func() {
			record := swap.New("expired-swap", "hash", 1000, 1, time.Now().UTC().Add(-time.Hour))
			Expect(db.Create(context.Background(), record)).To(Succeed())

			recorder := do("POST", "/trigger-swap/expired-swap", map[string]any{"forceExecute": true}, nil)
			Expect(recorder.Code).To(Equal(http.StatusGone))
			Expect(errorCode(recorder)).To(Equal(string(swap.CodeSwapExpired)))
		})

		It("should return 404 for an unknown swap", func() {
			recorder := do("POST", "/trigger-swap/missing", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /order-tracking/:swapId", func() {
		It("should report an inactive session before order submission", func() {
			swapID := createSwap()
			recorder := do("GET", "/order-tracking/"+swapID, nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusOK))

			body := decode(recorder)
			Expect(body["swapId"]).To(Equal(swapID))
			Expect(body["swapStatus"]).To(Equal("pending"))
			Expect(body["active"]).To(BeFalse())
		})

		It("should return 404 for an unknown swap", func() {
			recorder := do("GET", "/order-tracking/missing", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /reveal-preimage/:swapId", func() {
		signedToken := func(secret string) string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": "operator",
				"exp": time.Now().Add(time.Hour).Unix(),
			})
			signed, err := token.SignedString([]byte(secret))
			Expect(err).To(BeNil())
			return signed
		}

		It("should reject a request without a token", func() {
			recorder := do("POST", "/reveal-preimage/any", nil, nil)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should reject a token signed with the wrong secret", func() {
			header := http.Header{"Authorization": []string{signedToken("wrong-secret")}}
			recorder := do("POST", "/reveal-preimage/any", nil, header)
			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should keep the preimage sealed before completion", func() {
			swapID := createSwap()
			header := http.Header{"Authorization": []string{signedToken(jwtSecret)}}
			recorder := do("POST", "/reveal-preimage/"+swapID, nil, header)
			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(errorCode(recorder)).To(Equal(string(swap.CodeValidation)))
		})

		It("should release the preimage of a completed swap", func() {
			swapID := createSwap()
			record, err := db.Get(context.Background(), swapID)
			Expect(err).To(BeNil())
			record.Status = swap.StatusCompleted
			Expect(db.Update(context.Background(), record)).To(Succeed())

			header := http.Header{"Authorization": []string{signedToken(jwtSecret)}}
			recorder := do("POST", "/reveal-preimage/"+swapID, nil, header)
			Expect(recorder.Code).To(Equal(http.StatusOK))

			body := decode(recorder)
			Expect(body["swapId"]).To(Equal(swapID))
			Expect(body["preimage"]).To(Equal(record.Preimage))
		})
	})
})
