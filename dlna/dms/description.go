package dms

import (
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"io"
	"net"

	"github.com/gomedia/dlnasrv/dlna/upnp"
)

const (
	rootDeviceType = "urn:schemas-upnp-org:device:MediaServer:1"
	manufacturer   = "gomedia"
	modelName      = "dlnasrv"
	modelNumber    = "1"

	descriptionPath        = "/description.xml"
	cdsSCPDPath            = "/service/ContentDirectory.xml"
	cmSCPDPath             = "/service/ConnectionManager.xml"
	cdsControlPath         = "/service/ContentDirectory/control"
	cmControlPath          = "/service/ConnectionManager/control"
	cdsEventSubPath        = "/service/ContentDirectory/events"
	cmEventSubPath         = "/service/ConnectionManager/events"
	mediaPathPrefix        = "/media/"
	contentDirectoryURN    = "urn:schemas-upnp-org:service:ContentDirectory:1"
	connectionManagerURN   = "urn:schemas-upnp-org:service:ConnectionManager:1"
)

// makeDeviceUUID derives a stable device UUID from a seed string (MD5 of
// the seed, formatted by upnp.FormatUUID). Nothing calls it at present:
// when the configuration carries no UUID, cmd/mediaserver generates a
// random one and persists it to the config file.
func makeDeviceUUID(seed string) string {
	h := md5.New()
	_, _ = io.WriteString(h, seed)
	return upnp.FormatUUID(h.Sum(nil))
}

func (s *Server) deviceDescriptionXML() []byte {
	desc := upnp.DeviceDesc{
		SpecVersion: upnp.SpecVersion{Major: 1, Minor: 0},
		URLBase:     fmt.Sprintf("http://%s", (&net.TCPAddr{IP: s.PrimaryIP(), Port: s.cfg.ServerPort}).String()),
		Device: upnp.Device{
			DeviceType:      rootDeviceType,
			FriendlyName:    s.cfg.ServerName,
			Manufacturer:    manufacturer,
			ModelName:       modelName,
			ModelNumber:     modelNumber,
			UDN:             "uuid:" + s.deviceUUID,
			PresentationURL: "/",
			ServiceList: []upnp.Service{
				{
					ServiceType: contentDirectoryURN,
					ServiceId:   "urn:upnp-org:serviceId:ContentDirectory",
					ControlURL:  cdsControlPath,
					EventSubURL: cdsEventSubPath,
					SCPDURL:     cdsSCPDPath,
				},
				{
					ServiceType: connectionManagerURN,
					ServiceId:   "urn:upnp-org:serviceId:ConnectionManager",
					ControlURL:  cmControlPath,
					EventSubURL: cmEventSubPath,
					SCPDURL:     cmSCPDPath,
				},
			},
		},
	}
	body, err := xml.MarshalIndent(desc, "", "  ")
	if err != nil {
		// desc is a fixed, always-valid literal; a marshal failure here
		// means a programming error, not a runtime condition to recover
		// from.
		panic(fmt.Errorf("dms: marshal device description: %w", err))
	}
	return append([]byte(xml.Header), body...)
}

// contentDirectorySCPD is a minimal SCPD listing the actions this server
// actually implements (spec §4.6.2's supported-action subset), in the
// shape the teacher serves its own SCPDs in (static string, served
// verbatim by handleSCPDs).
const contentDirectorySCPD = xml.Header + `<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <actionList>
    <action><name>Browse</name>
      <argumentList>
        <argument><name>ObjectID</name><direction>in</direction></argument>
        <argument><name>BrowseFlag</name><direction>in</direction></argument>
        <argument><name>Filter</name><direction>in</direction></argument>
        <argument><name>StartingIndex</name><direction>in</direction></argument>
        <argument><name>RequestedCount</name><direction>in</direction></argument>
        <argument><name>SortCriteria</name><direction>in</direction></argument>
        <argument><name>Result</name><direction>out</direction></argument>
        <argument><name>NumberReturned</name><direction>out</direction></argument>
        <argument><name>TotalMatches</name><direction>out</direction></argument>
        <argument><name>UpdateID</name><direction>out</direction></argument>
      </argumentList>
    </action>
    <action><name>Search</name>
      <argumentList>
        <argument><name>ContainerID</name><direction>in</direction></argument>
        <argument><name>SearchCriteria</name><direction>in</direction></argument>
        <argument><name>Filter</name><direction>in</direction></argument>
        <argument><name>StartingIndex</name><direction>in</direction></argument>
        <argument><name>RequestedCount</name><direction>in</direction></argument>
        <argument><name>SortCriteria</name><direction>in</direction></argument>
        <argument><name>Result</name><direction>out</direction></argument>
        <argument><name>NumberReturned</name><direction>out</direction></argument>
        <argument><name>TotalMatches</name><direction>out</direction></argument>
        <argument><name>UpdateID</name><direction>out</direction></argument>
      </argumentList>
    </action>
    <action><name>GetSearchCapabilities</name>
      <argumentList><argument><name>SearchCaps</name><direction>out</direction></argument></argumentList>
    </action>
    <action><name>GetSortCapabilities</name>
      <argumentList><argument><name>SortCaps</name><direction>out</direction></argument></argumentList>
    </action>
    <action><name>GetSystemUpdateID</name>
      <argumentList><argument><name>Id</name><direction>out</direction></argument></argumentList>
    </action>
  </actionList>
  <serviceStateTable></serviceStateTable>
</scpd>`

// connectionManagerSCPD mirrors the minimal required-but-not-central
// ConnectionManager surface (spec §4.6 routes table: "SOAP actions
// (minimal)").
const connectionManagerSCPD = xml.Header + `<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <actionList>
    <action><name>GetProtocolInfo</name>
      <argumentList>
        <argument><name>Source</name><direction>out</direction></argument>
        <argument><name>Sink</name><direction>out</direction></argument>
      </argumentList>
    </action>
    <action><name>GetCurrentConnectionIDs</name>
      <argumentList><argument><name>ConnectionIDs</name><direction>out</direction></argument></argumentList>
    </action>
    <action><name>GetCurrentConnectionInfo</name>
      <argumentList><argument><name>ConnectionID</name><direction>in</direction></argument></argumentList>
    </action>
  </actionList>
  <serviceStateTable></serviceStateTable>
</scpd>`
