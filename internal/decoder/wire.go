package decoder

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

type transaction struct {
	Signatures []string `json:"signatures"`
	Message    message  `json:"message"`
}

type message struct {
	AccountKeys []accountKey `json:"accountKeys"`
	// Elements are decoded one by one so a malformed instruction only
	// loses itself.
	Instructions []json.RawMessage `json:"instructions"`
}

type txMeta struct {
	Err               json.RawMessage   `json:"err"`
	PreTokenBalances  []json.RawMessage `json:"preTokenBalances"`
	PostTokenBalances []json.RawMessage `json:"postTokenBalances"`
}

func (m *txMeta) failed() bool {
	if m == nil {
		return false
	}
	e := bytes.TrimSpace(m.Err)
	return len(e) > 0 && !bytes.Equal(e, []byte("null"))
}

type tokenBalance struct {
	AccountIndex  int          `json:"accountIndex"`
	Mint          string       `json:"mint"`
	UITokenAmount *tokenAmount `json:"uiTokenAmount"`
}

type tokenAmount struct {
	Amount   flexAmount `json:"amount"`
	Decimals *int       `json:"decimals"`
}

// accountKey accepts a bare base58 string or a jsonParsed
// {"pubkey": ...} object.
type accountKey string

func (k *accountKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*k = accountKey(s)
		return nil
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		// Unknown key shape: keep the position, leave it empty.
		*k = ""
		return nil
	}
	*k = accountKey(obj.Pubkey)
	return nil
}

type instruction struct {
	Program        string          `json:"program"`
	ProgramID      string          `json:"programId"`
	ProgramIDIndex *int            `json:"programIdIndex"`
	Accounts       json.RawMessage `json:"accounts"`
	Data           string          `json:"data"`
	Parsed         json.RawMessage `json:"parsed"`
}

type parsedInstruction struct {
	Type string     `json:"type"`
	Info parsedInfo `json:"info"`
}

type parsedInfo struct {
	Source        string       `json:"source"`
	Destination   string       `json:"destination"`
	Mint          string       `json:"mint"`
	Amount        flexAmount   `json:"amount"`
	TokenAmount   *tokenAmount `json:"tokenAmount"`
	UITokenAmount *tokenAmount `json:"uiTokenAmount"`
}

// flexAmount accepts an integer amount encoded as a JSON string or number.
type flexAmount string

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = flexAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*a = flexAmount(n.String())
		return nil
	}
	*a = ""
	return nil
}

// uint64 returns the positive integer value of the amount. Exponent
// notation is accepted when it denotes a whole number; fractional values
// are rejected.
func (a flexAmount) uint64() (uint64, bool) {
	if a == "" {
		return 0, false
	}
	if v, err := strconv.ParseUint(string(a), 10, 64); err == nil {
		return v, v > 0
	}
	f, err := strconv.ParseFloat(string(a), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 1 || f >= math.MaxUint64 {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	return uint64(f), true
}

// maxDecimals is the largest precision an SPL mint can declare (u8).
const maxDecimals = 255

func validDecimals(d int) bool {
	return d >= 0 && d <= maxDecimals
}
