package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"resellhub/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisposition(t *testing.T) {
	transient := errors.New("store unavailable")

	assert.Equal(t, ack, disposition(nil, 1, 5))
	assert.Equal(t, retry, disposition(transient, 1, 5))
	assert.Equal(t, deadLetter, disposition(transient, 5, 5))
	assert.Equal(t, deadLetter, disposition(fmt.Errorf("bad payload: %w", ErrMalformed), 1, 5))
}

func TestEventEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, ev, err := encodeEvent(model.EventRefundIssued, model.RefundIssued{
		AgentID: "a1", LedgerEntryID: "e1", Reason: "chargeback",
	}, at)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)

	got, err := decodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, model.EventRefundIssued, got.Type)
	assert.Equal(t, at, got.EnqueuedAt)
	assert.JSONEq(t, `{"agent_id":"a1","ledger_entry_id":"e1","reason":"chargeback"}`, string(got.Payload))
}

func TestDecodeEvent_Rejects(t *testing.T) {
	_, err := decodeEvent("not json")
	assert.Error(t, err)

	_, err = decodeEvent(`{"id":"x","payload":{}}`)
	assert.ErrorIs(t, err, ErrMalformed)
}
