// Package feed turns Solana log subscriptions into pool-creation and trade
// events for the strategy engine.
package feed

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-momentum-bot/internal/domain"
)

// PumpFunProgram is the pump.fun bonding-curve program ID.
const PumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// programDataPrefix marks anchor event payloads in transaction logs.
const programDataPrefix = "Program data: "

// Anchor event discriminators (first 8 bytes of the event payload).
var (
	createEventDiscriminator = []byte{27, 114, 169, 77, 222, 235, 99, 118}
	tradeEventDiscriminator  = []byte{189, 219, 127, 211, 78, 230, 97, 238}
)

// Unit scaling for pump.fun curve state.
const (
	lamportsPerSol     = 1e9
	tokenUnitsPerWhole = 1e6
)

// initialCurveSol is the virtual SOL reserve a fresh pump.fun curve starts
// with; used as the initial market cap when the create tx carries no trade.
const initialCurveSol = 30.0

// Parser extracts pool and price events from pump.fun transaction logs.
type Parser struct{}

// NewParser creates a pump.fun log parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseLogs scans transaction logs and returns any pool creations and trades
// found. nowMs stamps create events, which carry no on-chain timestamp.
func (p *Parser) ParseLogs(logs []string, txSig string, nowMs int64) ([]domain.PoolEvent, []domain.PriceEvent) {
	var pools []domain.PoolEvent
	var prices []domain.PriceEvent

	for _, line := range logs {
		idx := strings.Index(line, programDataPrefix)
		if idx < 0 {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(line[idx+len(programDataPrefix):])
		if err != nil || len(payload) < 8 {
			continue
		}

		switch {
		case bytes.Equal(payload[:8], createEventDiscriminator):
			if ev, ok := parseCreateEvent(payload[8:], txSig, nowMs); ok {
				pools = append(pools, ev)
			}
		case bytes.Equal(payload[:8], tradeEventDiscriminator):
			if ev, ok := parseTradeEvent(payload[8:]); ok {
				prices = append(prices, ev)
			}
		}
	}

	return pools, prices
}

// parseCreateEvent decodes a pump.fun CreateEvent:
// name(string) | symbol(string) | uri(string) | mint(32) | bondingCurve(32) | user(32)
// Strings are u32-length-prefixed.
func parseCreateEvent(data []byte, txSig string, nowMs int64) (domain.PoolEvent, bool) {
	r := reader{buf: data}

	_, ok := r.str() // name
	if !ok {
		return domain.PoolEvent{}, false
	}
	symbol, ok := r.str()
	if !ok {
		return domain.PoolEvent{}, false
	}
	if _, ok = r.str(); !ok { // uri
		return domain.PoolEvent{}, false
	}
	mint, ok := r.pubkey()
	if !ok {
		return domain.PoolEvent{}, false
	}
	if _, ok = r.pubkey(); !ok { // bonding curve
		return domain.PoolEvent{}, false
	}
	user, userOK := r.pubkey()

	ev := domain.PoolEvent{
		Mint:        mint,
		CreatedAtMs: nowMs,
		InitialMcap: initialCurveSol,
		Symbol:      symbol,
		Signature:   txSig,
	}
	// Only wallets on the ed25519 curve are user-controlled; PDAs are not a
	// creator identity worth tracking.
	if userOK && isOnCurve(user) {
		ev.DevWallet = user
	}
	return ev, true
}

// parseTradeEvent decodes a pump.fun TradeEvent:
// mint(32) | solAmount(u64) | tokenAmount(u64) | isBuy(1) | user(32) |
// timestamp(i64) | virtualSolReserves(u64) | virtualTokenReserves(u64)
func parseTradeEvent(data []byte) (domain.PriceEvent, bool) {
	r := reader{buf: data}

	mint, ok := r.pubkey()
	if !ok {
		return domain.PriceEvent{}, false
	}
	solAmount, ok := r.u64()
	if !ok {
		return domain.PriceEvent{}, false
	}
	if _, ok = r.u64(); !ok { // tokenAmount
		return domain.PriceEvent{}, false
	}
	isBuy, ok := r.boolean()
	if !ok {
		return domain.PriceEvent{}, false
	}
	user, ok := r.pubkey()
	if !ok {
		return domain.PriceEvent{}, false
	}
	ts, ok := r.i64()
	if !ok {
		return domain.PriceEvent{}, false
	}
	vSol, ok := r.u64()
	if !ok {
		return domain.PriceEvent{}, false
	}
	vTok, ok := r.u64()
	if !ok || vTok == 0 {
		return domain.PriceEvent{}, false
	}

	side := domain.SideSell
	sol := -float64(solAmount) / lamportsPerSol
	if isBuy {
		side = domain.SideBuy
		sol = -sol
	}

	solReserve := float64(vSol) / lamportsPerSol
	tokenReserve := float64(vTok) / tokenUnitsPerWhole

	return domain.PriceEvent{
		Mint:        mint,
		Price:       solReserve / tokenReserve,
		Liquidity:   solReserve,
		Sol:         sol,
		Wallet:      user,
		TokensCurve: tokenReserve,
		Side:        side,
		TimestampMs: ts * 1000,
	}, true
}

// isOnCurve reports whether a base58 pubkey decodes to a point on the
// ed25519 curve.
func isOnCurve(pubkey string) bool {
	raw, err := base58.Decode(pubkey)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// reader is a bounds-checked little-endian cursor over event payloads.
type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, bool) {
	if r.off+n > len(r.buf) {
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

func (r *reader) u64() (uint64, bool) {
	b, ok := r.take(8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func (r *reader) i64() (int64, bool) {
	v, ok := r.u64()
	return int64(v), ok
}

func (r *reader) boolean() (bool, bool) {
	b, ok := r.take(1)
	if !ok {
		return false, false
	}
	return b[0] != 0, true
}

func (r *reader) pubkey() (string, bool) {
	b, ok := r.take(32)
	if !ok {
		return "", false
	}
	return base58.Encode(b), true
}

func (r *reader) str() (string, bool) {
	lenBytes, ok := r.take(4)
	if !ok {
		return "", false
	}
	n := int(binary.LittleEndian.Uint32(lenBytes))
	if n < 0 || n > len(r.buf)-r.off {
		return "", false
	}
	b, _ := r.take(n)
	return string(b), true
}
