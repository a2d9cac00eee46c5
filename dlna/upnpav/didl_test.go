package upnpav

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDIDLLiteDeclaresNamespaces(t *testing.T) {
	d := NewDIDLLite()
	assert.Equal(t, "http://purl.org/dc/elements/1.1/", d.NSDC)
	assert.Equal(t, "urn:schemas-upnp-org:metadata-1-0/upnp/", d.NSUPnP)
	assert.Equal(t, "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/", d.NS)
}

func TestProtocolInfoShape(t *testing.T) {
	assert.Equal(t, "http-get:*:video/mp4:*", ProtocolInfo("video/mp4"))
}

func TestDIDLLiteMarshalsContainerAndItem(t *testing.T) {
	size := uint64(1048576)
	d := NewDIDLLite()
	d.Containers = []Container{{
		ID: "1", ParentID: "0", Restricted: 1, Title: "Video", Class: "object.container.storageFolder",
	}}
	d.Items = []Item{{
		ID: "i:abc", ParentID: "1", Restricted: 1, Title: "clip.mp4", Class: "object.item.videoItem",
		Res: []Res{{ProtocolInfo: ProtocolInfo("video/mp4"), Size: &size, URL: "http://host/media/i:abc"}},
	}}

	out, err := xml.Marshal(d)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `<container id="1" parentID="0" restricted="1">`)
	assert.Contains(t, s, "<dc:title>Video</dc:title>")
	assert.Contains(t, s, "<upnp:class>object.container.storageFolder</upnp:class>")
	assert.Contains(t, s, `<item id="i:abc" parentID="1" restricted="1">`)
	assert.Contains(t, s, `size="1048576"`)
	assert.Contains(t, s, "http://host/media/i:abc")
}

func TestResOmitsUnsetOptionalAttrs(t *testing.T) {
	out, err := xml.Marshal(Res{ProtocolInfo: ProtocolInfo("image/jpeg"), URL: "http://host/media/i:xyz"})
	require.NoError(t, err)
	s := string(out)
	assert.NotContains(t, s, "size=")
	assert.NotContains(t, s, "duration=")
}
