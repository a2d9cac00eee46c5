// Package soap defines the minimal SOAP 1.1 envelope types UPnP control
// messages are wrapped in. It mirrors the shape referenced by the teacher's
// dlna/dms/dms.go (soap.Envelope, soap.Arg, soap.NewFault) exactly, since
// that file's SOAP dispatch (serviceControlHandler, marshalSOAPResponse)
// decodes/encodes against these types without this package ever having
// shipped in the retrieved source.
package soap

import "encoding/xml"

// Envelope is the outer SOAP envelope UPnP control requests arrive in.
type Envelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    Body     `xml:"Body"`
}

// Body holds the raw inner action XML; the caller looks up the action name
// from the SOAPACTION HTTP header rather than this element, since the body
// element name is namespaced per-service.
type Body struct {
	Action []byte `xml:",innerxml"`
}

// Arg is one SOAP response argument, encoded by the writeSOAPResponse
// helper in dlna/dms. Request arguments are decoded separately by
// dlna/dms's decodeArgs.
type Arg struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// Fault is a SOAP 1.1 fault wrapping a single UPnPError detail, the only
// fault shape ContentDirectory/ConnectionManager ever emit.
type Fault struct {
	XMLName     xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Fault"`
	FaultCode   string   `xml:"faultcode"`
	FaultString string   `xml:"faultstring"`
	Detail      Detail   `xml:"detail"`
}

// Detail carries the UPnPError body inside a Fault.
type Detail struct {
	UPnPError UPnPError `xml:"urn:schemas-upnp-org:control-1-0 UPnPError"`
}

// UPnPError is the UPnP-specific fault detail: a numeric error code plus a
// human-readable description (spec §7 error taxonomy maps directly onto
// this for every ProtocolMalformed/UnsupportedAction/ObjectNotFound kind).
type UPnPError struct {
	XMLName     xml.Name `xml:"urn:schemas-upnp-org:control-1-0 UPnPError"`
	ErrorCode   int      `xml:"errorCode"`
	ErrorDesc   string   `xml:"errorDescription"`
}

// NewFault builds a Fault wrapping err's code/description. faultString is
// conventionally "UPnPError" for every UPnP control error.
func NewFault(faultString string, err UPnPError) Fault {
	return Fault{
		FaultCode:   "s:Client",
		FaultString: faultString,
		Detail:      Detail{UPnPError: err},
	}
}
