package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Input is a raw transaction payload in one of the supported shapes.
// The set is closed: LiveMessage and HistoricalTransaction.
type Input interface {
	body() (*txBody, error)
}

// LiveMessage is the result object of a transactionNotification.
type LiveMessage json.RawMessage

// HistoricalTransaction is the result object of getTransaction with
// jsonParsed encoding. Signature is used when the body carries none.
type HistoricalTransaction struct {
	Signature string
	Raw       json.RawMessage
}

// txBody is the shape-independent view both inputs reduce to.
type txBody struct {
	signature string
	slot      int64
	tx        transaction
	meta      *txMeta
}

type liveEnvelope struct {
	Signature   string `json:"signature"`
	Slot        int64  `json:"slot"`
	Transaction *struct {
		Transaction transaction `json:"transaction"`
		Meta        *txMeta     `json:"meta"`
	} `json:"transaction"`
}

func (m LiveMessage) body() (*txBody, error) {
	var env liveEnvelope
	if err := json.Unmarshal(m, &env); err != nil {
		return nil, fmt.Errorf("unmarshal live message: %w", err)
	}
	if env.Transaction == nil {
		return nil, fmt.Errorf("live message has no transaction")
	}

	b := &txBody{
		signature: env.Signature,
		slot:      env.Slot,
		tx:        env.Transaction.Transaction,
		meta:      env.Transaction.Meta,
	}
	if b.signature == "" && len(b.tx.Signatures) > 0 {
		b.signature = b.tx.Signatures[0]
	}
	return b, nil
}

type historicalEnvelope struct {
	Slot        int64        `json:"slot"`
	Transaction *transaction `json:"transaction"`
	Meta        *txMeta      `json:"meta"`
}

func (h HistoricalTransaction) body() (*txBody, error) {
	if len(bytes.TrimSpace(h.Raw)) == 0 {
		return nil, fmt.Errorf("empty transaction body")
	}

	var env historicalEnvelope
	if err := json.Unmarshal(h.Raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal historical transaction: %w", err)
	}
	if env.Transaction == nil {
		return nil, fmt.Errorf("historical body has no transaction")
	}

	b := &txBody{
		signature: h.Signature,
		slot:      env.Slot,
		tx:        *env.Transaction,
		meta:      env.Meta,
	}
	if len(b.tx.Signatures) > 0 && b.tx.Signatures[0] != "" {
		b.signature = b.tx.Signatures[0]
	}
	return b, nil
}
