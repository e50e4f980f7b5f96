package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// SpaceID is the space served by FakeUpstream
const SpaceID = "space1"

const syncPath = "/spaces/" + SpaceID + "/environments/master/sync"

type revision struct {
	generation int
	id         string
	kind       string
	item       string
}

// FakeUpstream serves the delta sync API for one space from an in-memory change log.
// Sync tokens are "g<generation>"; a delta round returns every change after that generation.
type FakeUpstream struct {
	server *httptest.Server

	mu         sync.Mutex
	generation int
	log        []revision
	pageSize   int
	requests   []string
}

// NewFakeUpstream starts a fake upstream. pageSize of 0 serves every round on one page.
func NewFakeUpstream(pageSize int) *FakeUpstream {
	f := &FakeUpstream{pageSize: pageSize}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

// URL returns the base URL to configure as upstream.baseURL
func (f *FakeUpstream) URL() string {
	return f.server.URL
}

// Close stops the server
func (f *FakeUpstream) Close() {
	f.server.Close()
}

// Requests returns the raw queries received so far
func (f *FakeUpstream) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// PutEntry publishes an entry. fields maps a field name to its en-US value; values built
// with EntryLink or AssetLink become links.
func (f *FakeUpstream) PutEntry(id, contentType string, fields map[string]any) {
	f.record(id, "Entry", entryJSON(id, contentType, fields))
}

// PutAsset publishes an asset
func (f *FakeUpstream) PutAsset(id, fileURL string) {
	f.record(id, "Asset", fmt.Sprintf(`{"sys":{"id":%q,"type":"Asset"},"fields":{"file":{"en-US":{"url":%q}}}}`, id, fileURL))
}

// DeleteEntry unpublishes an entry
func (f *FakeUpstream) DeleteEntry(id string) {
	f.record(id, "DeletedEntry", fmt.Sprintf(`{"sys":{"id":%q,"type":"DeletedEntry"}}`, id))
}

// DeleteAsset unpublishes an asset
func (f *FakeUpstream) DeleteAsset(id string) {
	f.record(id, "DeletedAsset", fmt.Sprintf(`{"sys":{"id":%q,"type":"DeletedAsset"}}`, id))
}

func (f *FakeUpstream) record(id, kind, item string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.log = append(f.log, revision{generation: f.generation, id: id, kind: kind, item: item})
}

// EntryLink returns a field value linking to an entry
func EntryLink(id string) json.RawMessage {
	return linkJSON("Entry", id)
}

// AssetLink returns a field value linking to an asset
func AssetLink(id string) json.RawMessage {
	return linkJSON("Asset", id)
}

func linkJSON(linkType, id string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"sys":{"type":"Link","linkType":%q,"id":%q}}`, linkType, id))
}

func entryJSON(id, contentType string, fields map[string]any) string {
	localized := make(map[string]map[string]any, len(fields))
	for name, v := range fields {
		localized[name] = map[string]any{"en-US": v}
	}
	data, err := json.Marshal(map[string]any{
		"sys": map[string]any{
			"id":          id,
			"type":        "Entry",
			"contentType": linkJSON("ContentType", contentType),
		},
		"fields": localized,
	})
	if err != nil {
		panic(err)
	}
	return string(data)
}

// itemsSince returns the latest change per record after generation since. An initial
// round leaves deleted records out.
func (f *FakeUpstream) itemsSince(since int, initial bool) []string {
	latest := map[string]revision{}
	for _, rev := range f.log {
		if rev.generation > since {
			latest[strings.TrimPrefix(rev.kind, "Deleted")+"/"+rev.id] = rev
		}
	}

	revs := make([]revision, 0, len(latest))
	for _, rev := range latest {
		if initial && strings.HasPrefix(rev.kind, "Deleted") {
			continue
		}
		revs = append(revs, rev)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].generation < revs[j].generation })

	items := make([]string, len(revs))
	for i, rev := range revs {
		items[i] = rev.item
	}
	return items
}

func (f *FakeUpstream) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.URL.RawQuery)
	if r.URL.Path != syncPath {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	since := 0
	if token := q.Get("sync_token"); token != "" {
		gen, err := strconv.Atoi(strings.TrimPrefix(token, "g"))
		if err != nil || !strings.HasPrefix(token, "g") || gen > f.generation {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		since = gen
	} else if q.Get("initial") != "true" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	items := f.itemsSince(since, q.Get("initial") == "true")
	page, _ := strconv.Atoi(q.Get("page"))

	body := map[string]any{}
	if f.pageSize > 0 && len(items) > (page+1)*f.pageSize {
		items = items[page*f.pageSize : (page+1)*f.pageSize]
		next := r.URL.Query()
		next.Set("page", strconv.Itoa(page+1))
		body["nextPageUrl"] = fmt.Sprintf("%s%s?%s", f.server.URL, syncPath, next.Encode())
	} else {
		if f.pageSize > 0 {
			items = items[page*f.pageSize:]
		}
		body["nextSyncUrl"] = fmt.Sprintf("%s%s?sync_token=g%d", f.server.URL, syncPath, f.generation)
	}

	raw := make([]json.RawMessage, len(items))
	for i, item := range items {
		raw[i] = json.RawMessage(item)
	}
	body["items"] = raw

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
