package dms

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gomedia/dlnasrv/dlna/soap"
	"github.com/gomedia/dlnasrv/dlna/upnp"
	"github.com/gomedia/dlnasrv/dlna/upnpav"
	"github.com/gomedia/dlnasrv/internal/mediastore"
	"github.com/gomedia/dlnasrv/internal/mimetable"
	"github.com/gomedia/dlnasrv/internal/objectid"
)

// maxRequestedCount is the implementation-chosen cap spec §4.6.2 allows
// when RequestedCount=0 means "all remaining".
const maxRequestedCount = 1000

// browseRequest is the decoded subset of a Browse/Search action's
// arguments this server consults.
type browseRequest struct {
	ObjectID       string
	ContainerID    string
	BrowseFlag     string
	SearchCriteria string
	Filter         string
	StartingIndex  int
	RequestedCount int
	SortCriteria   string
}

func decodeArgs(body []byte) (map[string]string, error) {
	type rawArg struct {
		XMLName xml.Name
		Value   string `xml:",chardata"`
	}
	type rawAction struct {
		Args []rawArg `xml:",any"`
	}
	var action rawAction
	if err := xml.Unmarshal(body, &action); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(action.Args))
	for _, a := range action.Args {
		out[a.XMLName.Local] = a.Value
	}
	return out, nil
}

func (s *Server) handleContentDirectoryControl(w http.ResponseWriter, r *http.Request) {
	s.handleSOAP(w, r, contentDirectoryURN, s.dispatchContentDirectory)
}

func (s *Server) handleConnectionManagerControl(w http.ResponseWriter, r *http.Request) {
	s.handleSOAP(w, r, connectionManagerURN, s.dispatchConnectionManager)
}

type actionDispatcher func(ctx context.Context, action string, args map[string]string, host string) ([]soap.Arg, error)

// handleSOAP parses the envelope, checks the SOAPACTION header names
// expectedURN, dispatches, and writes back a SOAP 1.1 response or fault
// (spec §4.6.2, §6.3, §7). The overall shape mirrors the teacher's
// serviceControlHandler.
func (s *Server) handleSOAP(w http.ResponseWriter, r *http.Request, expectedURN string, dispatch actionDispatcher) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second) // spec §5: SOAP handlers have a 5s deadline
	defer cancel()

	sa, err := upnp.ParseActionHTTPHeader(r.Header.Get("SOAPACTION"))
	if err != nil {
		s.writeSOAPFault(w, upnp.Error{Code: upnp.InvalidActionErrorCode, Desc: "missing or malformed SOAPACTION"})
		return
	}
	if sa.Type != expectedURN {
		s.writeSOAPFault(w, upnp.Error{Code: upnp.InvalidActionErrorCode, Desc: "unexpected service type"})
		return
	}
	var env soap.Envelope
	if err := xml.NewDecoder(r.Body).Decode(&env); err != nil {
		s.writeSOAPFault(w, upnp.Error{Code: upnp.InvalidArgsErrorCode, Desc: "malformed SOAP envelope"})
		return
	}
	args, err := decodeArgs(env.Body.Action)
	if err != nil {
		s.writeSOAPFault(w, upnp.Error{Code: upnp.InvalidArgsErrorCode, Desc: "malformed action arguments"})
		return
	}
	respArgs, err := dispatch(ctx, sa.Action, args, r.Host)
	if err != nil {
		s.writeSOAPFault(w, upnp.ConvertError(err))
		return
	}
	s.writeSOAPResponse(w, sa, respArgs)
}

func (s *Server) writeSOAPResponse(w http.ResponseWriter, sa upnp.SoapAction, args []soap.Arg) {
	inner, err := xml.Marshal(args)
	if err != nil {
		s.writeSOAPFault(w, upnp.Error{Code: 501, Desc: "internal marshal error"})
		return
	}
	body := fmt.Sprintf(`<u:%[1]sResponse xmlns:u="%[2]s">%[3]s</u:%[1]sResponse>`, sa.Action, sa.Type, inner)
	s.writeEnvelope(w, http.StatusOK, body)
}

func (s *Server) writeSOAPFault(w http.ResponseWriter, uerr upnp.Error) {
	fault := soap.NewFault("UPnPError", soap.UPnPError{ErrorCode: uerr.Code, ErrorDesc: uerr.Desc})
	body, err := xml.Marshal(fault)
	if err != nil {
		body = []byte(`<s:Fault><faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring></s:Fault>`)
	}
	// SOAP faults are valid UPnP control responses, not transport errors:
	// spec §8 scenario 6 requires HTTP 200 here, never 500.
	s.writeEnvelope(w, http.StatusOK, string(body))
}

func (s *Server) writeEnvelope(w http.ResponseWriter, code int, body string) {
	full := `<?xml version="1.0" encoding="utf-8" standalone="yes"?>` +
		`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">` +
		`<s:Body>` + body + `</s:Body></s:Envelope>`
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(code)
	_, _ = w.Write([]byte(full))
}

func (s *Server) dispatchContentDirectory(ctx context.Context, action string, args map[string]string, host string) ([]soap.Arg, error) {
	switch action {
	case "Browse":
		return s.actionBrowse(ctx, args, host)
	case "Search":
		return s.actionSearch(ctx, args, host)
	case "GetSearchCapabilities":
		return []soap.Arg{stringArg("SearchCaps", "upnp:class,dc:title")}, nil
	case "GetSortCapabilities":
		return []soap.Arg{stringArg("SortCaps", "dc:title,dc:date,upnp:class")}, nil
	case "GetSystemUpdateID":
		suid, err := s.store.SystemUpdateID(ctx)
		if err != nil {
			return nil, err
		}
		return []soap.Arg{stringArg("Id", strconv.FormatUint(uint64(suid), 10))}, nil
	default:
		return nil, upnp.Errorf(upnp.InvalidActionErrorCode, "unsupported ContentDirectory action %q", action)
	}
}

func (s *Server) dispatchConnectionManager(ctx context.Context, action string, args map[string]string, host string) ([]soap.Arg, error) {
	switch action {
	case "GetProtocolInfo":
		sources := protocolInfoSources()
		return []soap.Arg{stringArg("Source", sources), stringArg("Sink", "")}, nil
	case "GetCurrentConnectionIDs":
		return []soap.Arg{stringArg("ConnectionIDs", "0")}, nil
	case "GetCurrentConnectionInfo":
		return []soap.Arg{
			stringArg("RcsID", "-1"), stringArg("AVTransportID", "-1"),
			stringArg("ProtocolInfo", ""), stringArg("PeerConnectionManager", ""),
			stringArg("PeerConnectionID", "-1"), stringArg("Direction", "Output"),
			stringArg("Status", "OK"),
		}, nil
	default:
		return nil, upnp.Errorf(upnp.InvalidActionErrorCode, "unsupported ConnectionManager action %q", action)
	}
}

func protocolInfoSources() string {
	var mimes = []string{
		"video/mp4", "video/x-matroska", "video/x-msvideo", "video/quicktime", "video/webm", "video/x-ms-wmv", "video/mpeg", "video/mp2t",
		"audio/mpeg", "audio/flac", "audio/wav", "audio/ogg", "audio/mp4", "audio/aac", "audio/x-ms-wma",
		"image/jpeg", "image/png", "image/gif", "image/webp", "image/heic", "image/bmp",
	}
	infos := make([]string, 0, len(mimes))
	for _, m := range mimes {
		infos = append(infos, upnpav.ProtocolInfo(m))
	}
	return strings.Join(infos, ",")
}

func stringArg(name, value string) soap.Arg {
	return soap.Arg{XMLName: xml.Name{Local: name}, Value: value}
}

func parseBrowseRequest(args map[string]string) browseRequest {
	return browseRequest{
		ObjectID:       firstNonEmpty(args["ObjectID"], objectid.Root),
		ContainerID:    firstNonEmpty(args["ContainerID"], objectid.Root),
		BrowseFlag:     args["BrowseFlag"],
		SearchCriteria: args["SearchCriteria"],
		Filter:         args["Filter"],
		StartingIndex:  upnp.ParseUintDefault(args["StartingIndex"], 0),
		RequestedCount: upnp.ParseUintDefault(args["RequestedCount"], 0),
		SortCriteria:   args["SortCriteria"],
	}
}

func firstNonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func effectiveLimit(requested int) int {
	if requested <= 0 || requested > maxRequestedCount {
		return maxRequestedCount
	}
	return requested
}

func (s *Server) actionBrowse(ctx context.Context, args map[string]string, host string) ([]soap.Arg, error) {
	if s.metrics != nil {
		s.metrics.BrowseRequests.Inc()
	}
	req := parseBrowseRequest(args)
	switch req.BrowseFlag {
	case "BrowseMetadata":
		return s.browseMetadata(ctx, req.ObjectID, host)
	case "BrowseDirectChildren", "":
		return s.browseDirectChildren(ctx, req, host)
	default:
		return nil, upnp.Errorf(upnp.InvalidArgsErrorCode, "unsupported BrowseFlag %q", req.BrowseFlag)
	}
}

func (s *Server) browseMetadata(ctx context.Context, id, host string) ([]soap.Arg, error) {
	row, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, upnp.Errorf(upnp.NoSuchObjectErrorCode, "no such object %q", id)
	}
	didl := upnpav.NewDIDLLite()
	if row.Item != nil {
		didl.Items = []upnpav.Item{itemToDIDL(*row.Item, host)}
	} else {
		didl.Containers = []upnpav.Container{folderToDIDL(*row.Folder, 0)}
	}
	doc, err := xml.Marshal(didl)
	if err != nil {
		return nil, err
	}
	suid, err := s.store.SystemUpdateID(ctx)
	if err != nil {
		return nil, err
	}
	return []soap.Arg{
		stringArg("Result", string(doc)),
		stringArg("NumberReturned", "1"),
		stringArg("TotalMatches", "1"),
		stringArg("UpdateID", strconv.FormatUint(uint64(suid), 10)),
	}, nil
}

func (s *Server) browseDirectChildren(ctx context.Context, req browseRequest, host string) ([]soap.Arg, error) {
	crit := mediastore.ParseSortCriteria(req.SortCriteria)
	limit := effectiveLimit(req.RequestedCount)
	page, err := s.store.ListChildren(ctx, req.ObjectID, req.StartingIndex, limit, crit)
	if err != nil {
		if err == mediastore.ErrNotAContainer {
			return nil, upnp.Errorf(upnp.NoSuchObjectErrorCode, "not a container: %s", req.ObjectID)
		}
		return nil, err
	}
	return s.renderPage(page, req.ObjectID, host)
}

func (s *Server) actionSearch(ctx context.Context, args map[string]string, host string) ([]soap.Arg, error) {
	if s.metrics != nil {
		s.metrics.SearchRequests.Inc()
	}
	req := parseBrowseRequest(args)
	pred, err := parseSearchCriteria(req.SearchCriteria)
	if err != nil {
		return nil, upnp.Errorf(upnp.UnsupportedSearchErrorCode, "%v", err)
	}
	limit := effectiveLimit(req.RequestedCount)
	page, err := s.store.Search(ctx, req.ContainerID, pred, req.StartingIndex, limit)
	if err != nil {
		if err == mediastore.ErrUnsupportedPredicate {
			return nil, upnp.Errorf(upnp.UnsupportedSearchErrorCode, "unsupported search criteria")
		}
		return nil, err
	}
	return s.renderPage(page, req.ContainerID, host)
}

func (s *Server) renderPage(page mediastore.Page, parentID, host string) ([]soap.Arg, error) {
	didl := upnpav.NewDIDLLite()
	for _, f := range page.Folders {
		didl.Containers = append(didl.Containers, folderToDIDL(f, 0))
	}
	for _, it := range page.Items {
		didl.Items = append(didl.Items, itemToDIDL(it, host))
	}
	doc, err := xml.Marshal(didl)
	if err != nil {
		return nil, err
	}
	n := len(page.Folders) + len(page.Items)
	return []soap.Arg{
		stringArg("Result", string(doc)),
		stringArg("NumberReturned", strconv.Itoa(n)),
		stringArg("TotalMatches", strconv.Itoa(page.TotalMatches)),
		stringArg("UpdateID", strconv.FormatUint(uint64(page.SystemUpdateID), 10)),
	}, nil
}

func folderToDIDL(f mediastore.FolderNode, childCount int) upnpav.Container {
	return upnpav.Container{
		ID:         f.ObjectID,
		ParentID:   f.ParentID,
		Restricted: 1,
		Title:      f.DisplayTitle,
		Class:      "object.container.storageFolder",
	}
}

func itemToDIDL(it mediastore.MediaItem, host string) upnpav.Item {
	res := upnpav.Res{
		ProtocolInfo: upnpav.ProtocolInfo(it.MimeType),
		URL:          fmt.Sprintf("http://%s%s%s", host, mediaPathPrefix, it.ObjectID),
	}
	size := it.SizeBytes
	res.Size = &size
	if it.DurationSeconds != nil {
		res.Duration = formatDuration(*it.DurationSeconds)
	}
	if it.Resolution != nil {
		res.Resolution = *it.Resolution
	}
	return upnpav.Item{
		ID:         it.ObjectID,
		ParentID:   it.ParentFolderID,
		Restricted: 1,
		Title:      it.DisplayTitle,
		Class:      mimetable.UPnPClass(it.MediaClass),
		Date:       time.Unix(it.Mtime, 0).UTC().Format("2006-01-02"),
		Res:        []upnpav.Res{res},
	}
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%d:%02d:%06.3f", h, m, s)
}

// parseSearchCriteria parses the supported subset of SearchCriteria (spec
// §4.6.2): `upnp:class derivedfrom "object.item.videoItem"` (and
// .audioItem/.imageItem), optionally ANDed with `dc:title contains "x"`.
func parseSearchCriteria(s string) (mediastore.SearchPredicate, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return mediastore.SearchPredicate{}, fmt.Errorf("unsupported search criteria: empty")
	}
	parts := strings.SplitN(s, " and ", 2)
	var pred mediastore.SearchPredicate
	classDone := false
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if cls, ok := parseDerivedFrom(part); ok {
			pred.ClassDerivedFrom = cls
			classDone = true
			continue
		}
		if title, ok := parseTitleContains(part); ok {
			pred.TitleContains = title
			continue
		}
		return mediastore.SearchPredicate{}, fmt.Errorf("unsupported search criteria clause: %q", part)
	}
	if !classDone {
		return mediastore.SearchPredicate{}, fmt.Errorf("unsupported search criteria: missing upnp:class derivedfrom")
	}
	return pred, nil
}

func parseDerivedFrom(clause string) (string, bool) {
	const prefix = `upnp:class derivedfrom "`
	if !strings.HasPrefix(clause, prefix) || !strings.HasSuffix(clause, `"`) {
		return "", false
	}
	return clause[len(prefix) : len(clause)-1], true
}

func parseTitleContains(clause string) (string, bool) {
	const prefix = `dc:title contains "`
	if !strings.HasPrefix(clause, prefix) || !strings.HasSuffix(clause, `"`) {
		return "", false
	}
	return clause[len(prefix) : len(clause)-1], true
}
