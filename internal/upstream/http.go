package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/httpclient"
	"github.com/stacklok/content-mirror/internal/mirrorerr"
)

const (
	// DefaultEnvironment is used when no environment is configured
	DefaultEnvironment = "master"

	// maxPages bounds how many pages one round follows
	maxPages = 10000

	itemTypeEntry        = "Entry"
	itemTypeAsset        = "Asset"
	itemTypeDeletedEntry = "DeletedEntry"
	itemTypeDeletedAsset = "DeletedAsset"
)

// ErrResolveLinksUnsupported is returned for queries asking the server to expand links
var ErrResolveLinksUnsupported = errors.New("sync API does not expand links")

// HTTPClient implements Client against a paginated sync endpoint:
//
//	GET {base}/spaces/{space}/environments/{env}/sync?initial=true[&type=Entry&content_type=ct]
//	GET {base}/spaces/{space}/environments/{env}/sync?sync_token=<cursor>
//
// Each page carries "items" plus either "nextPageUrl" (more pages follow) or
// "nextSyncUrl" (last page; its sync_token is the new cursor).
type HTTPClient struct {
	httpClient  httpclient.Client
	baseURL     string
	spaceID     string
	environment string
}

// NewHTTPClient creates a sync API client
func NewHTTPClient(httpClient httpclient.Client, baseURL, spaceID, environment string) *HTTPClient {
	if environment == "" {
		environment = DefaultEnvironment
	}
	return &HTTPClient{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		spaceID:     spaceID,
		environment: environment,
	}
}

// Sync fetches every page of one round and folds the items into a DeltaBatch
func (c *HTTPClient) Sync(ctx context.Context, q Query) (*DeltaBatch, error) {
	if q.ResolveLinks {
		return nil, mirrorerr.Upstream("build sync query", ErrResolveLinksUnsupported)
	}

	pageURL, err := c.firstPageURL(q)
	if err != nil {
		return nil, mirrorerr.Upstream("build sync query", err)
	}

	acc := newAccumulator()
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, mirrorerr.Upstream("fetch sync page", fmt.Errorf("more than %d pages in one round", maxPages))
		}

		data, err := c.httpClient.Get(ctx, pageURL)
		if err != nil {
			return nil, mirrorerr.Upstream("fetch sync page", err)
		}

		if !gjson.ValidBytes(data) {
			return nil, mirrorerr.Upstream("parse sync page", fmt.Errorf("invalid JSON from %s", pageURL))
		}
		result := gjson.ParseBytes(data)

		for _, item := range result.Get("items").Array() {
			if err := acc.add(item); err != nil {
				return nil, mirrorerr.Upstream("parse sync item", err)
			}
		}

		if next := result.Get("nextPageUrl"); next.Exists() && next.String() != "" {
			nextURL, err := c.resolveURL(next.String())
			if err != nil {
				return nil, mirrorerr.Upstream("parse sync page", err)
			}
			if nextURL == pageURL {
				return nil, mirrorerr.Upstream("parse sync page", fmt.Errorf("nextPageUrl repeats %s", pageURL))
			}
			pageURL = nextURL
			continue
		}

		cursor, err := cursorFromSyncURL(result.Get("nextSyncUrl").String())
		if err != nil {
			return nil, mirrorerr.Upstream("parse sync page", err)
		}

		batch := acc.batch(cursor)
		slog.Debug("Fetched sync round",
			"pages", page+1,
			"entries", len(batch.Entries),
			"assets", len(batch.Assets),
			"deleted_entries", len(batch.DeletedEntryIDs),
			"deleted_assets", len(batch.DeletedAssetIDs))
		return batch, nil
	}
}

func (c *HTTPClient) firstPageURL(q Query) (string, error) {
	if c.baseURL == "" || c.spaceID == "" {
		return "", fmt.Errorf("base URL and space ID are required")
	}

	params := url.Values{}
	switch {
	case q.Initial:
		params.Set("initial", "true")
		if q.ContentType != "" {
			params.Set("type", itemTypeEntry)
			params.Set("content_type", q.ContentType)
		}
	case q.Cursor != "":
		params.Set("sync_token", q.Cursor)
	default:
		return "", fmt.Errorf("query needs either initial or a cursor")
	}

	return fmt.Sprintf("%s/spaces/%s/environments/%s/sync?%s",
		c.baseURL, url.PathEscape(c.spaceID), url.PathEscape(c.environment), params.Encode()), nil
}

// resolveURL accepts absolute page URLs and URLs relative to the base URL
func (c *HTTPClient) resolveURL(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid page URL %q: %w", raw, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func cursorFromSyncURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("last page has neither nextPageUrl nor nextSyncUrl")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid nextSyncUrl %q: %w", raw, err)
	}
	token := u.Query().Get("sync_token")
	if token == "" {
		return "", fmt.Errorf("nextSyncUrl %q has no sync_token", raw)
	}
	return token, nil
}

type itemKey struct {
	kind content.Kind
	id   string
}

type change struct {
	record  *content.Record
	deleted bool
}

// accumulator folds the items of a round, keeping only the last change per record
type accumulator struct {
	order   []itemKey
	changes map[itemKey]change
}

func newAccumulator() *accumulator {
	return &accumulator{changes: make(map[itemKey]change)}
}

func (a *accumulator) add(item gjson.Result) error {
	itemType := item.Get("sys.type").String()
	id := item.Get("sys.id").String()
	if id == "" {
		return fmt.Errorf("%s item without sys.id", itemType)
	}

	var (
		key itemKey
		ch  change
	)
	switch itemType {
	case itemTypeEntry, itemTypeAsset:
		var rec content.Record
		if err := json.Unmarshal([]byte(item.Raw), &rec); err != nil {
			return fmt.Errorf("decode %s %s: %w", itemType, id, err)
		}
		key = itemKey{kind: rec.Kind, id: id}
		ch = change{record: &rec}
	case itemTypeDeletedEntry:
		key = itemKey{kind: content.KindEntry, id: id}
		ch = change{deleted: true}
	case itemTypeDeletedAsset:
		key = itemKey{kind: content.KindAsset, id: id}
		ch = change{deleted: true}
	default:
		slog.Debug("Skipping sync item of unknown type", "type", itemType, "id", id)
		return nil
	}

	if _, seen := a.changes[key]; !seen {
		a.order = append(a.order, key)
	}
	a.changes[key] = ch
	return nil
}

func (a *accumulator) batch(cursor string) *DeltaBatch {
	b := &DeltaBatch{Cursor: cursor}
	for _, key := range a.order {
		ch := a.changes[key]
		switch {
		case ch.deleted && key.kind == content.KindEntry:
			b.DeletedEntryIDs = append(b.DeletedEntryIDs, key.id)
		case ch.deleted:
			b.DeletedAssetIDs = append(b.DeletedAssetIDs, key.id)
		case key.kind == content.KindEntry:
			b.Entries = append(b.Entries, *ch.record)
		default:
			b.Assets = append(b.Assets, *ch.record)
		}
	}
	return b
}
