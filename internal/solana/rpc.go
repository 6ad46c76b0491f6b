// Package solana provides minimal JSON-RPC and WebSocket clients for the
// Solana node API surface the trading engine needs: account lookups for
// risk checks, transaction fetches for bundler detection, and log
// subscriptions for the event feed.
package solana

import "context"

// Well-known program IDs.
const (
	// TokenProgram is the SPL Token program ID.
	TokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	// Token2022Program is the extended token program carrying transfer-fee
	// extensions.
	Token2022Program = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// RPCClient defines the Solana RPC HTTP interface used by the engine.
type RPCClient interface {
	// GetAccountInfo retrieves account info by public key. Returns nil if
	// the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTransaction retrieves a confirmed transaction by signature.
	// Returns nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetTokenAccountsByOwner lists token accounts of owner for mint.
	GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]string, error)

	// GetTokenAccountBalance returns the raw token balance of an account.
	GetTokenAccountBalance(ctx context.Context, account string) (uint64, error)
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte // decoded account data
	Executable bool
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []Instruction
}

// Instruction is a compiled top-level instruction.
type Instruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string // base58
}

// FirstInstructionProgram resolves the program ID of the first top-level
// instruction, or "" when the message carries none.
func (t *Transaction) FirstInstructionProgram() string {
	if t == nil || t.Message == nil || len(t.Message.Instructions) == 0 {
		return ""
	}
	idx := t.Message.Instructions[0].ProgramIDIndex
	if idx < 0 || idx >= len(t.Message.AccountKeys) {
		return ""
	}
	return t.Message.AccountKeys[idx]
}
