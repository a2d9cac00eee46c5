package dms

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/log"
	"github.com/google/uuid"
)

// defaultSubscriptionTimeout is used when a SUBSCRIBE request omits TIMEOUT
// or asks for "Second-infinite" (spec §4.6.3: GENA subscriptions are capped,
// never infinite, to bound the expiry sweep's working set).
const defaultSubscriptionTimeout = 1800 * time.Second

const maxSubscriptionTimeout = 24 * time.Hour

// subscription is one GENA subscriber's bookkeeping: where to NOTIFY and
// when the subscription lapses.
type subscription struct {
	sid        string
	service    string
	callback   string
	expires    time.Time
	seq        uint32
}

// subscriptionTable tracks active GENA subscriptions across both services
// (spec §4.6.3). Grounded on the teacher's dlna/dms/dms.go subscription map
// (guarded by a mutex, swept by a ticker goroutine), generalized from its
// single-service model to per-service SID namespaces.
type subscriptionTable struct {
	mu   sync.Mutex
	subs map[string]*subscription
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{subs: make(map[string]*subscription)}
}

func (t *subscriptionTable) add(service, callback string, timeout time.Duration) *subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub := &subscription{
		sid:      "uuid:" + uuid.NewString(),
		service:  service,
		callback: callback,
		expires:  time.Now().Add(timeout),
	}
	t.subs[sub.sid] = sub
	return sub
}

func (t *subscriptionTable) renew(sid string, timeout time.Duration) (*subscription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.subs[sid]
	if !ok {
		return nil, false
	}
	sub.expires = time.Now().Add(timeout)
	return sub, true
}

func (t *subscriptionTable) remove(sid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, sid)
}

func (t *subscriptionTable) forService(service string) []*subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*subscription
	for _, sub := range t.subs {
		if sub.service == service {
			out = append(out, sub)
		}
	}
	return out
}

// runExpiryLoop sweeps lapsed subscriptions every minute until the process
// exits; GENA has no explicit teardown signal so this is the only cleanup.
func (t *subscriptionTable) runExpiryLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		t.mu.Lock()
		for sid, sub := range t.subs {
			if now.After(sub.expires) {
				delete(t.subs, sid)
			}
		}
		t.mu.Unlock()
	}
}

func parseTimeoutHeader(v string) time.Duration {
	if v == "" {
		return defaultSubscriptionTimeout
	}
	var secs int
	if _, err := fmt.Sscanf(v, "Second-%d", &secs); err != nil || secs <= 0 {
		return defaultSubscriptionTimeout
	}
	d := time.Duration(secs) * time.Second
	if d > maxSubscriptionTimeout {
		return maxSubscriptionTimeout
	}
	return d
}

// handleEventSub returns the SUBSCRIBE/UNSUBSCRIBE handler for one service,
// mirroring the teacher's subscribe handler shape but split per-service so
// ContentDirectory and ConnectionManager get independent SID namespaces.
func (s *Server) handleEventSub(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "SUBSCRIBE":
			s.handleSubscribe(w, r, service)
		case "UNSUBSCRIBE":
			s.handleUnsubscribe(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, service string) {
	timeout := parseTimeoutHeader(r.Header.Get("TIMEOUT"))
	if sid := r.Header.Get("SID"); sid != "" {
		sub, ok := s.subs.renew(sid, timeout)
		if !ok {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		writeSubscribeResponse(w, sub, timeout)
		return
	}
	callback := extractCallback(r.Header.Get("CALLBACK"))
	if callback == "" || r.Header.Get("NT") != "upnp:event" {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	sub := s.subs.add(service, callback, timeout)
	writeSubscribeResponse(w, sub, timeout)
	s.notifySubscriber(sub, true)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get("SID")
	if sid == "" {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	s.subs.remove(sid)
	w.WriteHeader(http.StatusOK)
}

func writeSubscribeResponse(w http.ResponseWriter, sub *subscription, timeout time.Duration) {
	w.Header().Set("SID", sub.sid)
	w.Header().Set("TIMEOUT", fmt.Sprintf("Second-%d", int(timeout.Seconds())))
	w.WriteHeader(http.StatusOK)
}

// extractCallback pulls the single "<http://...>" URL out of a CALLBACK
// header, ignoring any additional angle-bracketed values (spec §4.6.3 only
// requires supporting one delivery URL per subscription).
func extractCallback(header string) string {
	start := indexByte(header, '<')
	end := indexByte(header, '>')
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return header[start+1 : end]
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// runSystemUpdateIDNotifier polls SystemUpdateID and pushes a GENA NOTIFY
// to every ContentDirectory subscriber whenever it changes (spec §4.6.3).
func (s *Server) runSystemUpdateIDNotifier() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	var last uint32
	first := true
	for range ticker.C {
		suid, err := s.store.SystemUpdateID(context.Background())
		if err != nil {
			s.logger.Levelf(log.Debug, "dms: gena: SystemUpdateID: %v", err)
			continue
		}
		if s.metrics != nil {
			s.metrics.SystemUpdateID.Set(float64(suid))
		}
		if first {
			last = suid
			first = false
			continue
		}
		if suid == last {
			continue
		}
		last = suid
		for _, sub := range s.subs.forService("ContentDirectory") {
			s.notifySubscriber(sub, false)
		}
	}
}

// notifySubscriber sends one GENA NOTIFY with the current SystemUpdateID
// property change, best-effort: delivery failures are logged, not retried
// (spec §4.6.3 treats subscribers as best-effort listeners).
func (s *Server) notifySubscriber(sub *subscription, initial bool) {
	suid, err := s.store.SystemUpdateID(context.Background())
	if err != nil {
		return
	}
	body := fmt.Sprintf(`<?xml version="1.0"?>`+
		`<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">`+
		`<e:property><SystemUpdateID>%d</SystemUpdateID></e:property>`+
		`</e:propertyset>`, suid)
	req, err := http.NewRequest("NOTIFY", sub.callback, strings.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("CONTENT-TYPE", `text/xml; charset="utf-8"`)
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("NTS", "upnp:propchange")
	req.Header.Set("SID", sub.sid)
	sub.seq++
	req.Header.Set("SEQ", fmt.Sprint(sub.seq))
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		s.logger.Levelf(log.Debug, "dms: gena: notify %s: %v", sub.callback, err)
		return
	}
	_ = resp.Body.Close()
}
