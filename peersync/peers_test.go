package peersync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		list    string
		want    []Peer
		wantErr error
	}{
		{name: "empty", list: "  ", want: []Peer{}},
		{
			name: "space separated",
			list: "http://10.0.0.2:3000 https://Bob.example/",
			want: []Peer{
				{Name: "10.0.0.2:3000", URL: "http://10.0.0.2:3000"},
				{Name: "bob.example", URL: "https://Bob.example"},
			},
		},
		{
			name: "comma separated with path",
			list: "http://a:3000/registry/,http://b:3000",
			want: []Peer{
				{Name: "a:3000", URL: "http://a:3000/registry"},
				{Name: "b:3000", URL: "http://b:3000"},
			},
		},
		{name: "duplicate host", list: "http://a:3000 https://a:3000/x", wantErr: ErrDuplicatePeer},
		{name: "missing scheme", list: "a:3000", wantErr: ErrInvalidPeerURL},
		{name: "bad scheme", list: "ftp://a", wantErr: ErrInvalidPeerURL},
		{name: "missing host", list: "http:///path", wantErr: ErrInvalidPeerURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.list)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
