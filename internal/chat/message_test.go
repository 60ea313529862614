package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_ISOStrings(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{`"2024-03-01T12:30:45Z"`, time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)},
		{`"2024-03-01T12:30:45.123Z"`, time.Date(2024, 3, 1, 12, 30, 45, 123e6, time.UTC)},
		{`"2024-03-01T14:30:45+02:00"`, time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)},
		{`"2024-03-01T12:30:45.5"`, time.Date(2024, 3, 1, 12, 30, 45, 500e6, time.UTC)},
	}
	for _, tc := range cases {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(tc.in), &ts), tc.in)
		assert.Equal(t, tc.want.UnixMilli(), int64(ts), tc.in)
	}
}

func TestTimestamp_NumericPassesThrough(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`1709296245123`), &ts))
	assert.Equal(t, Timestamp(1709296245123), ts)
}

func TestTimestamp_FallbackToNow(t *testing.T) {
	before := time.Now().UnixMilli()
	for _, in := range []string{`null`, `0`, `"not a date"`} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(in), &ts), in)
		assert.GreaterOrEqual(t, int64(ts), before, in)
	}
}

func TestMessage_DecodeWireFormat(t *testing.T) {
	raw := `[{"id":"m1","senderId":"u1","content":"hey","timestamp":"2024-03-01T12:30:45Z"},
	         {"id":"m2","senderId":"u2","content":"yo","timestamp":1709296246000}]`
	var msgs []Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, Timestamp(1709296245000), msgs[0].Timestamp)
	assert.Equal(t, Timestamp(1709296246000), msgs[1].Timestamp)
	assert.False(t, msgs[0].Pending())
}

func TestPartnerID(t *testing.T) {
	assert.Equal(t, "u2", PartnerID([]string{"u1", "u2"}, "u1"))
	assert.Equal(t, "u1", PartnerID([]string{"u1", "u2"}, "u2"))
	assert.Equal(t, "", PartnerID([]string{"u1"}, "u1"))
	assert.Equal(t, "", PartnerID(nil, "u1"))
}

func TestMessage_DecodeMarksEstimated(t *testing.T) {
	before := time.Now().UnixMilli()
	raw := `[{"id":"m1","senderId":"u1","content":"a","timestamp":1709296246000},
	         {"id":"m2","senderId":"u2","content":"b","timestamp":null},
	         {"senderId":"u2","content":"c"},
	         {"senderId":"u2","content":"d","timestamp":"yesterday"}]`
	var msgs []Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msgs))
	require.Len(t, msgs, 4)

	assert.False(t, msgs[0].Estimated)
	assert.Equal(t, Timestamp(1709296246000), msgs[0].Timestamp)
	for _, m := range msgs[1:] {
		assert.True(t, m.Estimated, m.Content)
		assert.GreaterOrEqual(t, int64(m.Timestamp), before, m.Content)
	}
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "u2", msgs[2].SenderID)
}

func TestMessage_DecodeRejectsBadTimestampType(t *testing.T) {
	var m Message
	assert.Error(t, json.Unmarshal([]byte(`{"id":"m1","timestamp":true}`), &m))
}
