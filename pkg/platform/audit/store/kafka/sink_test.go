package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "vitalis/pkg/domain"
	audit "vitalis/pkg/platform/audit"
)

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		p.records = append(p.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestSink_AppendProducesKeyedRecord(t *testing.T) {
	producer := &recordingProducer{}
	sink := NewSink(producer, "vitalis.audit")

	entry := audit.Entry{
		ID:           id.AuditEntryID(uuid.New()),
		ActorID:      id.UserID(uuid.New()),
		ActorRole:    id.RoleAdmin,
		Action:       audit.ActionReviewRetentionFlag,
		TargetEntity: audit.EntityRetentionFlag,
		TargetID:     uuid.NewString(),
		Metadata:     map[string]any{"action": "retained"},
		CreatedAt:    time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sink.Append(context.Background(), entry))
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "vitalis.audit", rec.Topic)
	assert.Equal(t, entry.ID.String(), string(rec.Key))
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "REVIEW_RETENTION_FLAG", string(rec.Headers[0].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Value, &body))
	assert.Equal(t, entry.ActorID.String(), body["actor_id"])
	assert.Equal(t, "2026-05-01T08:00:00Z", body["created_at"])
}

func TestSink_AppendSurfacesProduceError(t *testing.T) {
	sink := NewSink(&recordingProducer{err: errors.New("broker down")}, "vitalis.audit")
	err := sink.Append(context.Background(), audit.Entry{Action: audit.ActionRunRetentionCheck})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
