package swap

import (
	"time"
)

// BlockInterval is the assumed Bitcoin block interval used to convert a
// timelock expressed in blocks into a wall-clock expiry.
const BlockInterval = 10 * time.Minute

type Status string

const (
	StatusPending        Status = "pending"
	StatusBTCReceived    Status = "btc_received"
	StatusOrderSubmitted Status = "order_submitted"
	StatusOrderPending   Status = "order_pending"
	StatusOrderPartial   Status = "order_partial"
	StatusCompleted      Status = "completed"
	StatusOrderFailed    Status = "order_failed"
	StatusMMFailed       Status = "mm_failed"
	StatusExpired        Status = "expired"
)

// Terminal returns true if no further transition is allowed from the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusOrderFailed, StatusMMFailed, StatusExpired:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:        {StatusBTCReceived, StatusExpired},
	StatusBTCReceived:    {StatusOrderSubmitted, StatusMMFailed, StatusExpired},
	StatusOrderSubmitted: {StatusOrderPending, StatusCompleted, StatusOrderFailed, StatusExpired},
	StatusOrderPending:   {StatusOrderPartial, StatusCompleted, StatusOrderFailed, StatusExpired},
	StatusOrderPartial:   {StatusCompleted, StatusOrderFailed, StatusExpired},
}

// CanTransition reports whether moving from s to next is a legal state
// machine step.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ExecutedAmounts holds the amounts the venue reports as executed once an
// order reaches a terminal state. The values are decimal strings in the
// smallest unit of each asset.
type ExecutedAmounts struct {
	Sell string `json:"sell,omitempty"`
	Buy  string `json:"buy,omitempty"`
}

// Quote is the venue quote recorded when the sell order is submitted.
type Quote struct {
	SellAmount string `json:"sellAmount"`
	BuyAmount  string `json:"buyAmount"`
	FeeAmount  string `json:"feeAmount,omitempty"`
	ValidTo    int64  `json:"validTo,omitempty"`
}

// Swap is the central aggregate of the coordinator, keyed by a UUID. It is
// created when a preimage is issued, mutated only by the orchestrator, and
// never deleted; terminal statuses mark the end of its lifecycle.
type Swap struct {
	ID         string `json:"swapId"`
	SecretHash string `json:"hash"`
	// Preimage is returned in API responses only on testnet and regtest.
	// On mainnet it stays in the store and is released solely through the
	// privileged reveal operation.
	Preimage string `json:"preimage,omitempty"`

	UserBtcAddress string `json:"userBtcAddress"`
	UserEthWallet  string `json:"userEthWallet"`
	MMPubkey       string `json:"mmPubkey"`

	AmountSats  int64  `json:"btcAmount"`
	TargetToken string `json:"targetToken"`
	Timelock    int64  `json:"timelock"`

	ScriptHex      string `json:"htlcScript"`
	WitnessAddress string `json:"htlcAddress"`
	LegacyAddress  string `json:"htlcAddressLegacy"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`

	FundingTxID string     `json:"btcTxHash,omitempty"`
	FundedAt    *time.Time `json:"fundedAt,omitempty"`

	OrderID     string           `json:"orderId,omitempty"`
	Quote       *Quote           `json:"quote,omitempty"`
	OrderStatus string           `json:"orderStatus,omitempty"`
	Executed    *ExecutedAmounts `json:"executedAmounts,omitempty"`
	ClosedAt    *time.Time       `json:"closedAt,omitempty"`

	ErrorMessage string     `json:"errorMessage,omitempty"`
	ErrorAt      *time.Time `json:"errorAt,omitempty"`

	// PreimageIncluded is a response-only flag set by Redacted.
	PreimageIncluded bool `json:"preimageIncluded,omitempty"`
}

// New returns a pending swap with its expiry derived from the timelock.
func New(id, secretHash string, amountSats, timelock int64, now time.Time) Swap {
	return Swap{
		ID:         id,
		SecretHash: secretHash,
		AmountSats: amountSats,
		Timelock:   timelock,
		Status:     StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Duration(timelock) * BlockInterval),
	}
}

// PastExpiry reports whether the swap's deadline has passed.
func (s *Swap) PastExpiry(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Touch applies lazy expiry: a non-terminal swap whose deadline has passed
// is moved to expired. It returns true if the status changed. Expiry never
// triggers external side effects, refunds are an explicit operator action.
func (s *Swap) Touch(now time.Time) bool {
	if s.Status.Terminal() || !s.PastExpiry(now) {
		return false
	}
	s.Status = StatusExpired
	return true
}

// RecordError stores a failure message verbatim for operator diagnosis.
func (s *Swap) RecordError(msg string, now time.Time) {
	s.ErrorMessage = msg
	s.ErrorAt = &now
}

// Redacted returns a copy safe for API responses on mainnet: the preimage is
// stripped. Off mainnet the record is returned with the preimage flagged.
func (s Swap) Redacted(mainnet bool) Swap {
	if mainnet {
		s.Preimage = ""
	} else {
		s.PreimageIncluded = s.Preimage != ""
	}
	return s
}
