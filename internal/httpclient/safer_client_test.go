package httpclient

import (
	"context"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	c := NewSaferClient(5 * time.Second)

	tests := []struct {
		name    string
		rawURL  string
		wantErr bool
	}{
		{"https allowed", "https://api.example.com/search", false},
		{"http allowed", "http://feeds.example.com/rss", false},
		{"file scheme blocked", "file:///etc/passwd", true},
		{"ftp scheme blocked", "ftp://example.com/data", true},
		{"credential injection blocked", "http://evil.com@localhost/", true},
		{"loopback IP blocked", "http://127.0.0.1:8080/admin", true},
		{"private IP blocked", "http://192.168.1.1/", true},
		{"unspecified IP blocked", "http://0.0.0.0/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.rawURL)
			require.NoError(t, err)

			err = c.validateURL(u)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("10.0.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("172.16.5.5")))
	assert.True(t, isPrivateIP(net.ParseIP("::1")))
	assert.False(t, isPrivateIP(net.ParseIP("8.8.8.8")))
	assert.False(t, isPrivateIP(net.ParseIP("2606:4700::1111")))
}

func TestGetRejectsBadURL(t *testing.T) {
	c := NewSaferClient(time.Second)

	_, err := c.Get(context.Background(), "file:///etc/hosts")
	require.Error(t, err)
}
