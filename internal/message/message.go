// ABOUTME: Wire types for the broadcast payload relayed to fillers and listeners
// ABOUTME: Mirrors the compact/mandate/context JSON shape accepted on POST /broadcast

package message

import (
	"encoding/json"
	"fmt"
)

// BroadcastMessage is the single payload unit accepted by the relay.
// It carries a signed intent (the compact), its settlement mandate, and
// quote context. A message has no identity beyond its content: it is
// validated, fanned out, and forgotten.
type BroadcastMessage struct {
	ChainID            string  `json:"chainId"`
	Compact            Compact `json:"compact"`
	SponsorSignature   *string `json:"sponsorSignature"`
	AllocatorSignature string  `json:"allocatorSignature"`
	Context            Context `json:"context"`
	ClaimHash          *string `json:"claimHash,omitempty"`
}

// Compact is the inner signed intent structure being relayed.
type Compact struct {
	Arbiter string  `json:"arbiter"`
	Sponsor string  `json:"sponsor"`
	Nonce   string  `json:"nonce"`
	ID      string  `json:"id"`
	Expires string  `json:"expires"`
	Amount  string  `json:"amount"`
	Mandate Mandate `json:"mandate"`
}

// Mandate specifies settlement parameters on the target chain.
type Mandate struct {
	ChainID             uint64 `json:"chainId"`
	Tribunal            string `json:"tribunal"`
	Recipient           string `json:"recipient"`
	Expires             string `json:"expires"`
	Token               string `json:"token"`
	MinimumAmount       string `json:"minimumAmount"`
	BaselinePriorityFee string `json:"baselinePriorityFee"`
	ScalingFactor       string `json:"scalingFactor"`
	Salt                string `json:"salt"`
}

// Context carries fill cost and quote information attached to the compact.
type Context struct {
	Dispensation            string  `json:"dispensation"`
	DispensationUSD         *string `json:"dispensationUSD"`
	SpotOutputAmount        string  `json:"spotOutputAmount"`
	QuoteOutputAmountDirect string  `json:"quoteOutputAmountDirect"`
	QuoteOutputAmountNet    string  `json:"quoteOutputAmountNet"`
	DeltaAmount             *string `json:"deltaAmount,omitempty"`
	SlippageBips            *int    `json:"slippageBips,omitempty"`
	WitnessTypeString       *string `json:"witnessTypeString"`
	WitnessHash             string  `json:"witnessHash"`
	ClaimHash               *string `json:"claimHash,omitempty"`
}

// Decode parses a raw JSON payload into a BroadcastMessage.
// It performs structural decoding only; call Validate on the result for
// schema enforcement.
func Decode(raw []byte) (*BroadcastMessage, error) {
	var m BroadcastMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding broadcast payload: %w", err)
	}
	return &m, nil
}
