package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocol_String(t *testing.T) {
	assert.Equal(t, "TLS", ProtocolTLS.String())
	assert.Equal(t, "HTTP", ProtocolHTTP.String())
	assert.Equal(t, "Protocol(9)", Protocol(9).String())
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("http")
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTP, p)

	p, err = ParseProtocol(" TLS ")
	require.NoError(t, err)
	assert.Equal(t, ProtocolTLS, p)

	_, err = ParseProtocol("QUIC")
	assert.Error(t, err)
}

func TestProtocol_TextRoundTrip(t *testing.T) {
	for _, p := range Protocols {
		b, err := p.MarshalText()
		require.NoError(t, err)

		var got Protocol
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, p, got)
	}
}

func TestHistoryEntry_CloneIsIndependent(t *testing.T) {
	h := HistoryEntry{3: {Successes: 1}}
	c := h.Clone()
	c[3] = Counters{Successes: 9}
	c[4] = Counters{Failures: 1}

	assert.Equal(t, Counters{Successes: 1}, h[3])
	assert.Len(t, h, 1)
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"  Example.COM  ", "example.com"},
		{"example.com.", "example.com"},
		{"", ""},
		{"   ", ""},
		{"пример.рф", "xn--e1afmkfd.xn--p1ai"},
		{"Under_Score.example.com", "under_score.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomain(tt.in))
		})
	}
}
