package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationUnmarshalDefaultsBadFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Notification
	}{
		{
			name:  "well formed",
			input: `{"id":9,"type":"new_order","title":"Order","body":"#9","is_read":1,"user_name":"Asha"}`,
			want:  Notification{ID: 9, Type: TypeNewOrder, Title: "Order", Body: "#9", Read: true, UserName: "Asha"},
		},
		{
			name:  "wrong types",
			input: `{"id":9,"type":3,"title":5,"body":false,"user_name":[],"created_at":12}`,
			want:  Notification{ID: 9, Type: TypeGeneral, Title: DefaultTitle},
		},
		{
			name:  "string id and null body",
			input: `{"id":"12","title":"  ","body":null,"message":"hello"}`,
			want:  Notification{ID: 12, Type: TypeGeneral, Title: DefaultTitle, Body: "hello"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Notification
			require.NoError(t, json.Unmarshal([]byte(tt.input), &n))
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestNotificationUnmarshalRejectsMissingID(t *testing.T) {
	for _, input := range []string{`{"title":"x"}`, `{"id":null}`, `{"id":"abc"}`, `{"id":0}`} {
		var n Notification
		err := json.Unmarshal([]byte(input), &n)
		assert.ErrorIs(t, err, ErrMissingID, input)
	}

	var n Notification
	assert.Error(t, json.Unmarshal([]byte(`"text"`), &n))
}
