package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	f, err := ParseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{3128}, f.Ports)
	assert.Equal(t, "access.log", f.LogFile)
	assert.False(t, f.NeverAskForAuth)
	assert.False(t, f.OverTLS)
}

func TestParseFlagsRepeatableAndSliceFlags(t *testing.T) {
	f, err := ParseFlags([]string{
		"--port=8080",
		"--port=8443",
		"--users=alice:hunter2strongPass!",
		"--users=bob:correcthorsebatterystaplestrong",
		"--allow-serving-network=10.0.0.0/8",
		"--allow-serving-network=192.168.0.0/16",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{8080, 8443}, f.Ports)
	assert.Equal(t, []string{"alice:hunter2strongPass!", "bob:correcthorsebatterystaplestrong"}, f.Users)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, f.AllowServingNetwork)
}

func TestParseFlagsBooleansAndStrings(t *testing.T) {
	f, err := ParseFlags([]string{
		"--never-ask-for-auth",
		"--prohibit-serving",
		"--over-tls",
		"--cert=server.crt",
		"--key=server.key",
		"--web-content-path=/srv/www",
		"--reverse-proxy-config-file=rules.yaml",
		"--enable-github-proxy",
		"--log-dir=/var/log/multiproxy",
	})
	require.NoError(t, err)
	assert.True(t, f.NeverAskForAuth)
	assert.True(t, f.ProhibitServing)
	assert.True(t, f.OverTLS)
	assert.Equal(t, "server.crt", f.Cert)
	assert.Equal(t, "server.key", f.Key)
	assert.Equal(t, "/srv/www", f.WebContentPath)
	assert.Equal(t, "rules.yaml", f.ReverseProxyConfig)
	assert.True(t, f.EnableGithubProxy)
	assert.Equal(t, "/var/log/multiproxy", f.LogDir)
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	_, err := ParseFlags([]string{"--does-not-exist"})
	assert.Error(t, err)
}
