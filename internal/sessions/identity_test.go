package sessions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityString(t *testing.T) {
	assert.Equal(t, "private:386246614", Private("386246614").String())
	assert.Equal(t, "group:-100123456:0", GroupTopic("-100123456", DefaultTopicID).String())
	assert.Equal(t, "group:-100123456:99", GroupTopic("-100123456", 99).String())
}

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		in      string
		want    Identity
		wantErr bool
	}{
		{in: "private:42", want: Private("42")},
		{in: "group:-100:7", want: GroupTopic("-100", 7)},
		{in: "group:-100:0", want: GroupTopic("-100", 0)},
		{in: "private:", wantErr: true},
		{in: "group:-100", wantErr: true},
		{in: "group:-100:x", wantErr: true},
		{in: "group:-100:-1", wantErr: true},
		{in: "channel:1", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIdentity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "", Private("1").GroupKey())
	assert.Equal(t, "-100", GroupTopic("-100", 3).GroupKey())
	assert.True(t, GroupTopic("-100", 3).IsGroup())
	assert.False(t, Private("1").IsGroup())
}
