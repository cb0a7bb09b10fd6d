package labels

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/ruteri/docker-dns-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Recognized(t *testing.T) {
	p := NewParser("")

	tests := []struct {
		key  string
		want bool
	}{
		{"caddy", true},
		{"caddy_0", true},
		{"caddy_12", true},
		{"caddy_99999999999999999999999", true},
		{"caddy_", false},
		{"caddy_a", false},
		{"caddy_-1", false},
		{"caddy_1_2", false},
		{"caddy.reverse_proxy", false},
		{"caddy_0.reverse_proxy", false},
		{"Caddy", false},
		{"traefik", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Recognized(tt.key))
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    Declaration
		wantErr error
	}{
		{name: "public", value: "foo.public", want: Declaration{Name: "foo", Visibility: interfaces.Public}},
		{name: "private", value: "foo.private", want: Declaration{Name: "foo", Visibility: interfaces.Private}},
		{name: "dotted name", value: "api.foo.public", want: Declaration{Name: "api.foo", Visibility: interfaces.Public}},
		{name: "mixed case", value: "Foo.PUBLIC", want: Declaration{Name: "foo", Visibility: interfaces.Public}},
		{name: "trailing dot", value: "foo.private.", want: Declaration{Name: "foo", Visibility: interfaces.Private}},
		{name: "missing separator", value: "foopublic", wantErr: ErrMissingSuffix},
		{name: "unknown suffix", value: "foo.com", wantErr: interfaces.ErrUnknownVisibility},
		{name: "empty name", value: ".public", wantErr: ErrEmptyName},
		{name: "url", value: "http://foo.public", wantErr: ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue(tt.value)
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

func TestParser_Parse(t *testing.T) {
	p := NewParser("caddy")

	decls, errs := p.Parse(map[string]string{
		"caddy":                 "foo.public",
		"caddy_1":               "bar.private, baz.public",
		"caddy_2":               "broken.tld",
		"caddy_3":               "foo.public",
		"caddy.reverse_proxy":   "{{upstreams 80}}",
		"com.docker.compose.id": "x.public",
	})

	assert.ElementsMatch(t, []Declaration{
		{Name: "foo", Visibility: interfaces.Public},
		{Name: "bar", Visibility: interfaces.Private},
		{Name: "baz", Visibility: interfaces.Public},
	}, decls)

	require.Len(t, errs, 1)
	var perr *ParseError
	require.True(t, errors.As(errs[0], &perr))
	assert.Equal(t, "caddy_2", perr.Key)
	assert.Equal(t, "broken.tld", perr.Value)
}

func TestParser_ParseNeverFails(t *testing.T) {
	p := NewParser("")

	inputs := []map[string]string{
		nil,
		{},
		{"caddy": ""},
		{"caddy": "   "},
		{"caddy": "."},
		{"caddy": "..."},
		{"caddy": "nodot"},
		{"caddy_7": "a.b.c"},
	}

	for _, labels := range inputs {
		assert.NotPanics(t, func() {
			decls, _ := p.Parse(labels)
			assert.Empty(t, decls)
		})
	}
}

func TestParser_CustomPrefix(t *testing.T) {
	p := NewParser("dns")

	decls, errs := p.Parse(map[string]string{
		"dns_0": "svc.public",
		"caddy": "other.public",
	})
	assert.Empty(t, errs)
	assert.Equal(t, []Declaration{{Name: "svc", Visibility: interfaces.Public}}, decls)
}

func TestEntries(t *testing.T) {
	decls := []Declaration{
		{Name: "foo", Visibility: interfaces.Public},
		{Name: "bar", Visibility: interfaces.Private},
	}
	addrs := []netip.Addr{
		netip.MustParseAddr("10.0.0.5"),
		netip.MustParseAddr("::ffff:10.0.0.5"),
		{},
		netip.MustParseAddr("fd00::5"),
	}

	entries := Entries("svc1", decls, addrs)

	// the 4-in-6 address collapses onto its IPv4 form and the zero address is skipped
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, interfaces.Local("svc1"), e.Origin)
		assert.NoError(t, e.Validate())
	}
	assert.Contains(t, entries, interfaces.ServiceEntry{
		Name:       "foo",
		Address:    netip.MustParseAddr("10.0.0.5"),
		Visibility: interfaces.Public,
		Origin:     interfaces.Local("svc1"),
	})
	assert.Contains(t, entries, interfaces.ServiceEntry{
		Name:       "bar",
		Address:    netip.MustParseAddr("fd00::5"),
		Visibility: interfaces.Private,
		Origin:     interfaces.Local("svc1"),
	})
}
