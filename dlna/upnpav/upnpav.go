// Package upnpav implements the DIDL-Lite object model Browse/Search
// responses are serialized as (spec §4.6.2 "DIDL-Lite serialization
// contract"). The Container/Item/Res split mirrors
// rosschurchill-navidrome/server/dlna/content_directory.go's
// BrowseRequest/BrowseResponse shapes and
// JustinTDCT-CineVault/internal/dlna/contentdirectory.go's
// DIDLItem/DIDLContainer split, generalized to the exact property set
// spec'd here rather than either teacher's own feature set.
package upnpav

import "encoding/xml"

// DIDLLite is the outer document every Browse/Search result is wrapped in.
type DIDLLite struct {
	XMLName    xml.Name    `xml:"DIDL-Lite"`
	NSDC       string      `xml:"xmlns:dc,attr"`
	NSUPnP     string      `xml:"xmlns:upnp,attr"`
	NS         string      `xml:"xmlns,attr"`
	Containers []Container `xml:"container,omitempty"`
	Items      []Item      `xml:"item,omitempty"`
}

// NewDIDLLite builds an empty DIDL-Lite document with the three namespaces
// spec §4.6.2 requires declared.
func NewDIDLLite() DIDLLite {
	return DIDLLite{
		NSDC:   "http://purl.org/dc/elements/1.1/",
		NSUPnP: "urn:schemas-upnp-org:metadata-1-0/upnp/",
		NS:     "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/",
	}
}

// Container is one <container> element: a folder or pseudo-root container.
type Container struct {
	XMLName    xml.Name `xml:"container"`
	ID         string   `xml:"id,attr"`
	ParentID   string   `xml:"parentID,attr"`
	Restricted int      `xml:"restricted,attr"`
	Searchable int       `xml:"searchable,attr,omitempty"`
	ChildCount *int     `xml:"childCount,attr,omitempty"`
	Title      string   `xml:"dc:title"`
	Class      string   `xml:"upnp:class"`
}

// Item is one <item> element: a video/audio/image file.
type Item struct {
	XMLName  xml.Name `xml:"item"`
	ID       string   `xml:"id,attr"`
	ParentID string   `xml:"parentID,attr"`
	Restricted int    `xml:"restricted,attr"`
	Title    string   `xml:"dc:title"`
	Class    string   `xml:"upnp:class"`
	Date     string   `xml:"dc:date,omitempty"`
	Res      []Res    `xml:"res"`
}

// Res is the <res> element naming the streamable URL and its protocol
// info/size/duration, exactly the attribute set spec §4.6.2 requires when
// known: size, duration, protocolInfo.
type Res struct {
	ProtocolInfo string `xml:"protocolInfo,attr"`
	Size         *uint64 `xml:"size,attr,omitempty"`
	Duration     string `xml:"duration,attr,omitempty"`
	Resolution   string `xml:"resolution,attr,omitempty"`
	URL          string `xml:",chardata"`
}

// ProtocolInfo renders the "http-get:*:<mime>:*" string spec §4.6.2
// mandates — no DLNA.ORG_PN profile negotiation.
func ProtocolInfo(mime string) string {
	return "http-get:*:" + mime + ":*"
}
