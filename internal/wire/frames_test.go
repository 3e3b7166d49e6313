package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
		typ  string
	}{
		{"online", `{"type":"online","username":"alice","page":"/p"}`, true, TypeOnline},
		{"heartbeat", `{"type":"heartbeat"}`, true, TypeHeartbeat},
		{"admin message", `{"type":"admin_message","content":"hi","time":"10:00:00"}`, true, TypeAdminMessage},
		{"history", `{"type":"history","messages":[{"content":"a","is_admin":true,"time":"09:00:00"}]}`, true, TypeHistory},
		{"unknown type", `{"type":"shutdown"}`, false, ""},
		{"missing type", `{"content":"hi"}`, false, ""},
		{"not json", `not json`, false, ""},
		{"empty", ``, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, ok := Decode([]byte(tt.raw))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.typ, frame.Type)
			}
		})
	}
}

func TestHistoryMessageShape(t *testing.T) {
	frame, ok := Decode([]byte(`{"type":"history","messages":[
		{"content":"first","is_admin":true,"time":"09:00:00"},
		{"content":"second","is_admin":false,"time":"09:00:05"}]}`))
	require.True(t, ok)
	require.Len(t, frame.Messages, 2)
	assert.True(t, frame.Messages[0].IsAdmin)
	assert.False(t, frame.Messages[1].IsAdmin)
}

func TestReportMarshalsRawData(t *testing.T) {
	raw, err := json.Marshal(Report{Username: "alice", Data: json.RawMessage(`{"UserID":7}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"alice","data":{"UserID":7}}`, string(raw))
}
