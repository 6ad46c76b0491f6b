package feed

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-momentum-bot/internal/domain"
)

// onCurveKey returns a base58 pubkey guaranteed to be on the ed25519 curve.
func onCurveKey() string {
	return base58.Encode(edwards25519.NewGeneratorPoint().Bytes())
}

// offCurveKey returns a base58 pubkey that cannot decode to a curve point.
func offCurveKey() string {
	raw := bytes.Repeat([]byte{0xFF}, 32)
	return base58.Encode(raw)
}

func putString(buf *bytes.Buffer, s string) {
	var l [4]byte
	binary.LittleEndian.PutUint32(l[:], uint32(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
}

func putPubkey(t *testing.T, buf *bytes.Buffer, b58 string) {
	t.Helper()
	raw, err := base58.Decode(b58)
	require.NoError(t, err)
	require.Len(t, raw, 32)
	buf.Write(raw)
}

func putU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func encodeCreateEvent(t *testing.T, name, symbol, uri, mint, curve, user string) string {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(createEventDiscriminator)
	putString(&buf, name)
	putString(&buf, symbol)
	putString(&buf, uri)
	putPubkey(t, &buf, mint)
	putPubkey(t, &buf, curve)
	putPubkey(t, &buf, user)
	return programDataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func encodeTradeEvent(t *testing.T, mint string, solAmount, tokenAmount uint64, isBuy bool, user string, ts int64, vSol, vTok uint64) string {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(tradeEventDiscriminator)
	putPubkey(t, &buf, mint)
	putU64(&buf, solAmount)
	putU64(&buf, tokenAmount)
	if isBuy {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	putPubkey(t, &buf, user)
	putU64(&buf, uint64(ts))
	putU64(&buf, vSol)
	putU64(&buf, vTok)
	return programDataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestParseLogs_CreateEvent(t *testing.T) {
	mint := onCurveKey()
	dev := onCurveKey()

	logs := []string{
		"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]",
		encodeCreateEvent(t, "Good Dog", "WOOF", "https://example/x.json", mint, offCurveKey(), dev),
		"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P success",
	}

	p := NewParser()
	pools, prices := p.ParseLogs(logs, "sig123", 1_700_000_000_000)

	require.Len(t, pools, 1)
	assert.Empty(t, prices)

	ev := pools[0]
	assert.Equal(t, mint, ev.Mint)
	assert.Equal(t, "WOOF", ev.Symbol)
	assert.Equal(t, dev, ev.DevWallet)
	assert.Equal(t, "sig123", ev.Signature)
	assert.Equal(t, int64(1_700_000_000_000), ev.CreatedAtMs)
	assert.Equal(t, initialCurveSol, ev.InitialMcap)
}

func TestParseLogs_CreateEvent_PDACreatorDropped(t *testing.T) {
	logs := []string{
		encodeCreateEvent(t, "n", "S", "u", onCurveKey(), onCurveKey(), offCurveKey()),
	}

	pools, _ := NewParser().ParseLogs(logs, "sig", 0)
	require.Len(t, pools, 1)
	assert.Empty(t, pools[0].DevWallet)
}

func TestParseLogs_TradeEvent(t *testing.T) {
	mint := onCurveKey()
	wallet := onCurveKey()

	// 0.5 SOL buy against 32 virtual SOL / 1,000,000,000 tokens on curve.
	logs := []string{
		encodeTradeEvent(t, mint, 500_000_000, 15_000_000_000, true, wallet,
			1_700_000_123, 32_000_000_000, 1_000_000_000_000_000),
	}

	pools, prices := NewParser().ParseLogs(logs, "sig", 0)
	assert.Empty(t, pools)
	require.Len(t, prices, 1)

	ev := prices[0]
	assert.Equal(t, mint, ev.Mint)
	assert.Equal(t, domain.SideBuy, ev.Side)
	assert.Equal(t, wallet, ev.Wallet)
	assert.InDelta(t, 0.5, ev.Sol, 1e-9)
	assert.InDelta(t, 32.0, ev.Liquidity, 1e-9)
	assert.InDelta(t, 32.0/1_000_000_000, ev.Price, 1e-15)
	assert.InDelta(t, 1_000_000_000, ev.TokensCurve, 1e-3)
	assert.Equal(t, int64(1_700_000_123_000), ev.TimestampMs)
}

func TestParseLogs_SellIsNegativeNotional(t *testing.T) {
	logs := []string{
		encodeTradeEvent(t, onCurveKey(), 250_000_000, 1, false, onCurveKey(),
			1_700_000_000, 10_000_000_000, 500_000_000_000_000),
	}

	_, prices := NewParser().ParseLogs(logs, "sig", 0)
	require.Len(t, prices, 1)
	assert.Equal(t, domain.SideSell, prices[0].Side)
	assert.InDelta(t, -0.25, prices[0].Sol, 1e-9)
}

func TestParseLogs_IgnoresGarbage(t *testing.T) {
	p := NewParser()

	pools, prices := p.ParseLogs([]string{
		"Program log: Instruction: Buy",
		"Program data: !!!not-base64!!!",
		programDataPrefix + base64.StdEncoding.EncodeToString([]byte("short")),
		programDataPrefix + base64.StdEncoding.EncodeToString(append(append([]byte{}, tradeEventDiscriminator...), 0x01)),
	}, "sig", 0)

	assert.Empty(t, pools)
	assert.Empty(t, prices)
}

func TestParseLogs_MultipleEventsKeepOrder(t *testing.T) {
	m1, m2 := onCurveKey(), onCurveKey()
	logs := []string{
		encodeTradeEvent(t, m1, 1_000_000_000, 1, true, onCurveKey(), 1, 30_000_000_000, 1_000_000_000_000),
		encodeTradeEvent(t, m2, 2_000_000_000, 1, true, onCurveKey(), 2, 31_000_000_000, 900_000_000_000),
	}

	_, prices := NewParser().ParseLogs(logs, "sig", 0)
	require.Len(t, prices, 2)
	assert.Equal(t, int64(1000), prices[0].TimestampMs)
	assert.Equal(t, int64(2000), prices[1].TimestampMs)
}
