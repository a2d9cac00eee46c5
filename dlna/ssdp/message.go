package ssdp

import (
	"fmt"
	"strings"
	"time"
)

// Multicast address/port defaults (spec §4.5, §6.2). IPv6 SSDP is
// explicitly out of scope (spec §1 Non-goals).
const (
	MulticastAddr = "239.255.255.250"
	DefaultPort   = 1900
)

// NotificationTypes is the fixed list of NT values advertised per
// interface, in the order spec §4.5 lists them.
func NotificationTypes(deviceUUID string) []string {
	return []string{
		"upnp:rootdevice",
		"uuid:" + deviceUUID,
		"urn:schemas-upnp-org:device:MediaServer:1",
		"urn:schemas-upnp-org:service:ContentDirectory:1",
		"urn:schemas-upnp-org:service:ConnectionManager:1",
	}
}

// usn renders the USN header for one NT (spec §4.5 "USN format").
func usn(deviceUUID, nt string) string {
	if nt == "uuid:"+deviceUUID {
		return nt
	}
	return fmt.Sprintf("uuid:%s::%s", deviceUUID, nt)
}

// buildNotify renders one NOTIFY datagram's bytes. nts is "ssdp:alive" or
// "ssdp:byebye"; location/maxAge/server are omitted from byebye per
// convention (renderers don't need them to forget a device).
func buildNotify(host string, nt, deviceUUID, nts, location, server string, maxAge int) []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	b.WriteString("HOST: " + host + "\r\n")
	if nts == "ssdp:alive" {
		b.WriteString(fmt.Sprintf("CACHE-CONTROL: max-age=%d\r\n", maxAge))
		b.WriteString("LOCATION: " + location + "\r\n")
		b.WriteString("SERVER: " + server + "\r\n")
	}
	b.WriteString("NT: " + nt + "\r\n")
	b.WriteString("NTS: " + nts + "\r\n")
	b.WriteString("USN: " + usn(deviceUUID, nt) + "\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// buildSearchResponse renders one M-SEARCH 200 OK unicast response (spec
// §4.5 "M-SEARCH responder").
func buildSearchResponse(host, st, deviceUUID, location, server string, maxAge int) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	b.WriteString(fmt.Sprintf("CACHE-CONTROL: max-age=%d\r\n", maxAge))
	b.WriteString("DATE: " + time.Now().UTC().Format(http1123) + "\r\n")
	b.WriteString("EXT:\r\n")
	b.WriteString("LOCATION: " + location + "\r\n")
	b.WriteString("SERVER: " + server + "\r\n")
	b.WriteString("ST: " + st + "\r\n")
	b.WriteString("USN: " + usn(deviceUUID, st) + "\r\n")
	_ = host
	b.WriteString("\r\n")
	return []byte(b.String())
}

const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"

// searchRequest is the parsed subset of an M-SEARCH datagram this
// responder needs.
type searchRequest struct {
	ST string
	MX int
}

// parseSearchRequest parses a raw M-SEARCH datagram's header lines. Only
// ST/MX/MAN are consulted; malformed or non-discover requests are
// rejected.
func parseSearchRequest(raw []byte) (searchRequest, bool) {
	lines := strings.Split(string(raw), "\r\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "M-SEARCH") {
		return searchRequest{}, false
	}
	var req searchRequest
	sawDiscover := false
	for _, line := range lines[1:] {
		k, v, ok := splitHeader(line)
		if !ok {
			continue
		}
		switch strings.ToUpper(k) {
		case "MAN":
			if strings.Contains(v, "ssdp:discover") {
				sawDiscover = true
			}
		case "ST":
			req.ST = v
		case "MX":
			req.MX = clampMX(v)
		}
	}
	if !sawDiscover || req.ST == "" {
		return searchRequest{}, false
	}
	if req.MX == 0 {
		req.MX = 1
	}
	return req, true
}

func clampMX(v string) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err != nil {
		return 0
	}
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

func splitHeader(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

// matchingTargets returns every NT this engine advertises that satisfies
// st, per spec §4.5: ssdp:all matches everything, upnp:rootdevice and
// uuid:<uuid> match themselves, any advertised URN matches itself.
func matchingTargets(st, deviceUUID string, nts []string) []string {
	if st == "ssdp:all" {
		return nts
	}
	var out []string
	for _, nt := range nts {
		if nt == st {
			out = append(out, nt)
		}
	}
	return out
}
