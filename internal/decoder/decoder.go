// Package decoder turns raw feed messages and historical transaction
// bodies into normalized token transfers.
package decoder

import (
	"encoding/binary"
	"encoding/json"

	"github.com/AlekSi/pointer"
	sol "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"blinkstream/internal/domain"
)

// SPL token instruction opcodes.
const (
	opTransfer        = 3
	opTransferChecked = 12
)

// Decode extracts token transfers from in, or returns nil when none can be
// recovered. Transactions that failed on chain (meta.err set) yield nothing.
// Instructions and balance entries of an unexpected shape are skipped one by
// one without affecting the rest of the message.
func Decode(in Input) *domain.ParsedTransaction {
	if in == nil {
		return nil
	}
	b, err := in.body()
	if err != nil || b.meta.failed() {
		return nil
	}

	keys := make([]string, len(b.tx.Message.AccountKeys))
	for i, k := range b.tx.Message.AccountKeys {
		keys[i] = string(k)
	}
	balances := newBalanceIndex(keys, b.meta)

	var transfers []domain.Transfer
	for _, raw := range b.tx.Message.Instructions {
		var ix instruction
		if json.Unmarshal(raw, &ix) != nil {
			continue
		}
		if t, ok := decodeInstruction(ix, keys, balances); ok {
			transfers = append(transfers, t)
		}
	}
	if len(transfers) == 0 {
		return nil
	}

	return &domain.ParsedTransaction{
		Signature: b.signature,
		Slot:      b.slot,
		Transfers: transfers,
	}
}

func decodeInstruction(ix instruction, keys []string, balances balanceIndex) (domain.Transfer, bool) {
	programID := ix.ProgramID
	if programID == "" && ix.ProgramIDIndex != nil {
		programID = keyAt(keys, *ix.ProgramIDIndex)
	}

	if len(ix.Parsed) > 0 {
		var p parsedInstruction
		if json.Unmarshal(ix.Parsed, &p) == nil && (p.Type == "transfer" || p.Type == "transferChecked") {
			if programID != "" && !IsTokenProgram(programID) {
				return domain.Transfer{}, false
			}
			return decodeParsed(p.Info, balances)
		}
	}

	if !IsTokenProgram(programID) {
		return domain.Transfer{}, false
	}
	return decodeCompiled(ix, keys, balances)
}

func decodeParsed(info parsedInfo, balances balanceIndex) (domain.Transfer, bool) {
	amountRaw, ok := info.Amount.uint64()
	if !ok && info.TokenAmount != nil {
		amountRaw, ok = info.TokenAmount.Amount.uint64()
	}
	if !ok && info.UITokenAmount != nil {
		amountRaw, ok = info.UITokenAmount.Amount.uint64()
	}
	if !ok {
		return domain.Transfer{}, false
	}

	decimals := -1
	switch {
	case info.TokenAmount != nil && info.TokenAmount.Decimals != nil:
		decimals = *info.TokenAmount.Decimals
	case info.UITokenAmount != nil && info.UITokenAmount.Decimals != nil:
		decimals = *info.UITokenAmount.Decimals
	}
	if !validDecimals(decimals) {
		decimals = -1
	}

	mint := info.Mint
	if bal, found := balances.lookup(info.Source, info.Destination); found {
		if decimals < 0 {
			decimals = bal.decimals
		}
		if mint == "" {
			mint = bal.mint
		}
	}
	if decimals < 0 {
		decimals = domain.DefaultDecimals
	}

	return domain.Transfer{
		AmountRaw:   amountRaw,
		Decimals:    decimals,
		Source:      pointer.ToStringOrNil(info.Source),
		Destination: pointer.ToStringOrNil(info.Destination),
		Mint:        pointer.ToStringOrNil(mint),
	}, true
}

func decodeCompiled(ix instruction, keys []string, balances balanceIndex) (domain.Transfer, bool) {
	data, err := base58.Decode(ix.Data)
	if err != nil || len(data) < 9 {
		return domain.Transfer{}, false
	}

	accounts := resolveAccounts(ix.Accounts, keys)

	var source, destination, mint string
	decimals := -1

	switch data[0] {
	case opTransfer:
		source = keyAt(accounts, 0)
		destination = keyAt(accounts, 1)
	case opTransferChecked:
		source = keyAt(accounts, 0)
		mint = keyAt(accounts, 1)
		destination = keyAt(accounts, 2)
		if len(data) >= 10 {
			decimals = int(data[9])
		}
	default:
		return domain.Transfer{}, false
	}

	amountRaw := binary.LittleEndian.Uint64(data[1:9])
	if amountRaw == 0 {
		return domain.Transfer{}, false
	}

	if bal, found := balances.lookup(source, destination); found {
		if decimals < 0 {
			decimals = bal.decimals
		}
		if mint == "" {
			mint = bal.mint
		}
	}
	if decimals < 0 {
		decimals = domain.DefaultDecimals
	}

	return domain.Transfer{
		AmountRaw:   amountRaw,
		Decimals:    decimals,
		Source:      pointer.ToStringOrNil(source),
		Destination: pointer.ToStringOrNil(destination),
		Mint:        pointer.ToStringOrNil(mint),
	}, true
}

// resolveAccounts maps instruction accounts to addresses. Compiled
// instructions carry key indices, partially decoded ones carry addresses.
func resolveAccounts(raw json.RawMessage, keys []string) []string {
	if len(raw) == 0 {
		return nil
	}

	var indices []int
	if err := json.Unmarshal(raw, &indices); err == nil {
		out := make([]string, len(indices))
		for i, idx := range indices {
			out[i] = keyAt(keys, idx)
		}
		return out
	}

	var addrs []string
	if err := json.Unmarshal(raw, &addrs); err == nil {
		return addrs
	}

	// Geyser style byte buffer of key indices, base64 encoded by encoding/json.
	var buf []byte
	if err := json.Unmarshal(raw, &buf); err == nil {
		out := make([]string, len(buf))
		for i, idx := range buf {
			out[i] = keyAt(keys, int(idx))
		}
		return out
	}
	return nil
}

func keyAt(keys []string, i int) string {
	if i < 0 || i >= len(keys) {
		return ""
	}
	return keys[i]
}

// IsTokenProgram reports whether id is the SPL Token or Token-2022 program.
func IsTokenProgram(id string) bool {
	if id == "" {
		return false
	}
	pk, err := sol.PublicKeyFromBase58(id)
	if err != nil {
		return false
	}
	return pk.Equals(sol.TokenProgramID) || pk.Equals(sol.Token2022ProgramID)
}
