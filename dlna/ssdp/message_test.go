package ssdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearchRequestClampsMX(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\nHOST: 239.255.255.250:1900\r\nMAN: \"ssdp:discover\"\r\nST: ssdp:all\r\nMX: 30\r\n\r\n"
	req, ok := parseSearchRequest([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, "ssdp:all", req.ST)
	assert.Equal(t, 5, req.MX)
}

func TestParseSearchRequestDefaultsMX(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:discover\"\r\nST: upnp:rootdevice\r\n\r\n"
	req, ok := parseSearchRequest([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, 1, req.MX)
}

func TestParseSearchRequestRejectsNonDiscover(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\nST: ssdp:all\r\n\r\n"
	_, ok := parseSearchRequest([]byte(raw))
	assert.False(t, ok)
}

func TestMatchingTargetsAll(t *testing.T) {
	nts := NotificationTypes("abc")
	targets := matchingTargets("ssdp:all", "abc", nts)
	assert.ElementsMatch(t, nts, targets)
}

func TestMatchingTargetsExact(t *testing.T) {
	nts := NotificationTypes("abc")
	targets := matchingTargets("uuid:abc", "abc", nts)
	assert.Equal(t, []string{"uuid:abc"}, targets)
}

func TestUSNFormat(t *testing.T) {
	assert.Equal(t, "uuid:abc", usn("abc", "uuid:abc"))
	assert.Equal(t, "uuid:abc::upnp:rootdevice", usn("abc", "upnp:rootdevice"))
}

func TestBuildNotifyHasCRLFTerminator(t *testing.T) {
	msg := buildNotify("239.255.255.250:1900", "upnp:rootdevice", "abc", "ssdp:alive", "http://1.2.3.4:8080/description.xml", "srv/1", 1800)
	s := string(msg)
	assert.True(t, strings.HasSuffix(s, "\r\n\r\n"))
	assert.Contains(t, s, "HOST: 239.255.255.250:1900\r\n")
	assert.Contains(t, s, "CACHE-CONTROL: max-age=1800\r\n")
}
