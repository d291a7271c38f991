// ABOUTME: Schema validation rules for broadcast payloads
// ABOUTME: Pure predicate checks with per-field error accumulation, no partial acceptance

package message

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Field formats, exactly as the protocol defines them:
//   - hex: 0x prefix followed by any number of hex digits (the bare "0x"
//     sentinel has zero digits and is a valid hex string)
//   - address: 0x + exactly 40 hex digits (20 bytes)
//   - hash: 0x + exactly 64 hex digits (32 bytes)
//   - signature: 0x + exactly 128 hex digits (64 bytes)
//   - numeric-or-hex: an optionally negative base-10 integer, or a hex string
var (
	hexRe       = regexp.MustCompile(`^0x[0-9a-fA-F]*$`)
	addressRe   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	hashRe      = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	signatureRe = regexp.MustCompile(`^0x[0-9a-fA-F]{128}$`)
	numericRe   = regexp.MustCompile(`^-?\d+$`)
)

// maxMandateChainID is the largest chain id a mandate may target (2^32 - 1).
const maxMandateChainID = uint64(4294967295)

var (
	isAddress = validation.Match(addressRe).Error("must be a 0x-prefixed 20-byte hex address")
	isHash    = validation.Match(hashRe).Error("must be a 0x-prefixed 32-byte hex hash")

	isSignature = validation.Match(signatureRe).Error("must be a 0x-prefixed 64-byte hex signature")

	isNumericOrHex = validation.NewStringRule(numericOrHex,
		"must be a base-10 integer or a 0x-prefixed hex string")
)

func numericOrHex(s string) bool {
	return numericRe.MatchString(s) || hexRe.MatchString(s)
}

// checkSponsorSignature enforces the exact acceptance set for the sponsor
// signature: null, the literal "0x" empty-hex marker, or a 64-byte hex value.
func checkSponsorSignature(value interface{}) error {
	s, ok := value.(*string)
	if !ok || s == nil {
		return nil
	}
	if *s == "0x" || signatureRe.MatchString(*s) {
		return nil
	}
	return errors.New(`must be null, "0x", or a 0x-prefixed 64-byte hex signature`)
}

// checkOptionalHash validates a nullable hash field. Absence is fine; a
// present value must be a full 32-byte hash.
func checkOptionalHash(value interface{}) error {
	s, ok := value.(*string)
	if !ok || s == nil {
		return nil
	}
	if hashRe.MatchString(*s) {
		return nil
	}
	return errors.New("must be a 0x-prefixed 32-byte hex hash")
}

// checkOptionalSignedAmount validates deltaAmount, which permits a sign in
// front of either the decimal or the hex form.
func checkOptionalSignedAmount(value interface{}) error {
	s, ok := value.(*string)
	if !ok || s == nil {
		return nil
	}
	if numericRe.MatchString(*s) || hexRe.MatchString(strings.TrimPrefix(*s, "-")) {
		return nil
	}
	return errors.New("must be an optionally signed base-10 integer or 0x-prefixed hex string")
}

// Validate checks the message against the broadcast schema. All violations
// are accumulated and reported together as a validation.Errors value keyed
// by JSON field path; the payload is accepted or rejected atomically.
// Validation is pure and idempotent: a valid message is returned unchanged
// no matter how often it is re-checked.
func (m BroadcastMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ChainID, validation.Required, isNumericOrHex),
		validation.Field(&m.Compact, validation.Required),
		validation.Field(&m.SponsorSignature, validation.By(checkSponsorSignature)),
		validation.Field(&m.AllocatorSignature, validation.Required, isSignature),
		validation.Field(&m.Context, validation.Required),
		validation.Field(&m.ClaimHash, validation.By(checkOptionalHash)),
	)
}

// Validate checks the compact structure and its nested mandate.
func (c Compact) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Arbiter, validation.Required, isAddress),
		validation.Field(&c.Sponsor, validation.Required, isAddress),
		validation.Field(&c.Nonce, validation.Required, isNumericOrHex),
		validation.Field(&c.ID, validation.Required, isNumericOrHex),
		validation.Field(&c.Expires, validation.Required, isNumericOrHex),
		validation.Field(&c.Amount, validation.Required, isNumericOrHex),
		validation.Field(&c.Mandate, validation.Required),
	)
}

// Validate checks the mandate's settlement parameters.
func (md Mandate) Validate() error {
	return validation.ValidateStruct(&md,
		validation.Field(&md.ChainID, validation.Required, validation.Max(maxMandateChainID)),
		validation.Field(&md.Tribunal, validation.Required, isAddress),
		validation.Field(&md.Recipient, validation.Required, isAddress),
		validation.Field(&md.Expires, validation.Required, isNumericOrHex),
		validation.Field(&md.Token, validation.Required, isAddress),
		validation.Field(&md.MinimumAmount, validation.Required, isNumericOrHex),
		validation.Field(&md.BaselinePriorityFee, validation.Required, isNumericOrHex),
		validation.Field(&md.ScalingFactor, validation.Required, isNumericOrHex),
		validation.Field(&md.Salt, validation.Required, isHash),
	)
}

// Validate checks the quote context attached to the compact.
func (c Context) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Dispensation, validation.Required, isNumericOrHex),
		validation.Field(&c.DispensationUSD, validation.NotNil),
		validation.Field(&c.SpotOutputAmount, validation.Required, isNumericOrHex),
		validation.Field(&c.QuoteOutputAmountDirect, validation.Required, isNumericOrHex),
		validation.Field(&c.QuoteOutputAmountNet, validation.Required, isNumericOrHex),
		validation.Field(&c.DeltaAmount, validation.By(checkOptionalSignedAmount)),
		validation.Field(&c.SlippageBips, validation.Min(0), validation.Max(10000)),
		validation.Field(&c.WitnessTypeString, validation.NotNil),
		validation.Field(&c.WitnessHash, validation.Required, isHash),
		validation.Field(&c.ClaimHash, validation.By(checkOptionalHash)),
	)
}

// Parse decodes and validates a raw JSON payload in one step.
// On success the returned message is the accepted payload; on failure the
// error is either a decode error or a validation.Errors naming every
// violated field.
func Parse(raw []byte) (*BroadcastMessage, error) {
	m, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
