// Package upnp implements the small slice of UPnP device-description and
// SOAP-fault plumbing the ContentDirectory/ConnectionManager services need.
// Types and helpers mirror what the teacher's dlna/dms/dms.go imports from
// github.com/anacrolix/dms/upnp (upnp.Errorf, upnp.ConvertError,
// upnp.DeviceDesc, upnp.ParseActionHTTPHeader) even though that package was
// never part of the retrieved source itself.
package upnp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error is a UPnP control error: a numeric code plus short text, the shape
// every SOAP fault in spec §7's taxonomy boils down to.
type Error struct {
	Code int
	Desc string
}

func (e Error) Error() string {
	return fmt.Sprintf("UPnPError %d: %s", e.Code, e.Desc)
}

// Standard UPnP/ContentDirectory error codes used by the SOAP dispatcher
// (spec §7, §4.6.2).
const (
	InvalidActionErrorCode      = 401
	InvalidArgsErrorCode        = 402
	NoSuchObjectErrorCode       = 701
	UnsupportedSearchErrorCode  = 720
)

// Errorf builds an Error with a formatted description.
func Errorf(code int, format string, args ...interface{}) error {
	return Error{Code: code, Desc: fmt.Sprintf(format, args...)}
}

// ConvertError coerces any error into an Error, defaulting unrecognized
// errors to 501 Action Failed so a handler bug never serializes as a raw
// Go error string to a client.
func ConvertError(err error) Error {
	var ue Error
	if errors.As(err, &ue) {
		return ue
	}
	return Error{Code: 501, Desc: err.Error()}
}

// SoapAction is a parsed SOAPACTION header:
// `"urn:schemas-upnp-org:service:ContentDirectory:1#Browse"`.
type SoapAction struct {
	Type   string
	Action string
}

// ParseActionHTTPHeader parses the SOAPACTION header value, quotes
// included, per spec §6.3.
func ParseActionHTTPHeader(val string) (SoapAction, error) {
	val = strings.Trim(val, `"`)
	hash := strings.LastIndex(val, "#")
	if hash < 0 {
		return SoapAction{}, fmt.Errorf("upnp: malformed SOAPACTION %q", val)
	}
	return SoapAction{Type: val[:hash], Action: val[hash+1:]}, nil
}

// ServiceURNString renders the full urn:...:serviceType:1 this action was
// addressed to.
func (sa SoapAction) ServiceURNString() string {
	return sa.Type
}

// SpecVersion is the UPnP spec version block in a device description.
type SpecVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

// Icon describes one device icon entry in the description XML.
type Icon struct {
	Mimetype string `xml:"mimetype"`
	Width    int    `xml:"width"`
	Height   int    `xml:"height"`
	Depth    int    `xml:"depth"`
	URL      string `xml:"url"`
}

// Service is one <service> element in the device description's serviceList.
type Service struct {
	ServiceType string `xml:"serviceType"`
	ServiceId   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

// Device is the <device> element of a UPnP device description.
type Device struct {
	DeviceType      string    `xml:"deviceType"`
	FriendlyName    string    `xml:"friendlyName"`
	Manufacturer    string    `xml:"manufacturer"`
	ModelName       string    `xml:"modelName"`
	ModelNumber     string    `xml:"modelNumber,omitempty"`
	UDN             string    `xml:"UDN"`
	PresentationURL string    `xml:"presentationURL,omitempty"`
	IconList        []Icon    `xml:"iconList>icon,omitempty"`
	ServiceList     []Service `xml:"serviceList>service"`
}

// DeviceDesc is the root <root> element of /description.xml. URLBase
// anchors every relative control/event/SCPD URL in Device to the primary
// IP:port chosen at startup (spec §4.6.1).
type DeviceDesc struct {
	XMLName     struct{}    `xml:"urn:schemas-upnp-org:device-1-0 root"`
	SpecVersion SpecVersion `xml:"specVersion"`
	URLBase     string      `xml:"URLBase"`
	Device      Device      `xml:"device"`
}

// FormatUUID renders a 16-byte hash sum as a device UUID string
// (8-4-4-4-12 hex digits), matching the teacher's makeDeviceUuid shape.
func FormatUUID(sum []byte) string {
	s := fmt.Sprintf("%x", sum)
	for len(s) < 32 {
		s += "0"
	}
	return strings.Join([]string{s[0:8], s[8:12], s[12:16], s[16:20], s[20:32]}, "-")
}

// ParseUintDefault parses s as a non-negative int, returning def on error
// or an empty string, used throughout the Browse/Search argument parsing.
func ParseUintDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
