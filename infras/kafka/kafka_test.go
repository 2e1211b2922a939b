package kafka_test

import (
	"chalet/infras/kafka"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertEvent struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
}

func TestMessage_EncodesKeyAndJSONValue(t *testing.T) {
	msg := kafka.Message{Key: "manual_review_required", Value: alertEvent{Kind: "manual_review_required", Severity: "critical"}}

	encoded, err := msg.ToKafkaMessage()
	require.NoError(t, err)

	assert.Equal(t, []byte("manual_review_required"), encoded.Key)
	assert.JSONEq(t, `{"kind":"manual_review_required","severity":"critical"}`, string(encoded.Value))
}

func TestMessage_UnencodableValue(t *testing.T) {
	msg := kafka.Message{Key: "bad", Value: make(chan int)}

	_, err := msg.ToKafkaMessage()
	assert.Error(t, err)
}
