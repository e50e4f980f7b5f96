package integration

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/content-mirror/internal/content"
	mirrorsync "github.com/stacklok/content-mirror/internal/sync"
	"github.com/stacklok/content-mirror/internal/sync/state"
	"github.com/stacklok/content-mirror/test-integration/mirror/helpers"
)

type recordsResponse struct {
	Items []content.Record `json:"items"`
	Total int              `json:"total"`
}

type resolvedResponse struct {
	Items []map[string]any `json:"items"`
	Total int              `json:"total"`
}

// localized reads fields[name]["en-US"] from a decoded resolved record
func localized(record map[string]any, name string) any {
	fields := record["fields"].(map[string]any)
	return fields[name].(map[string]any)["en-US"]
}

var _ = Describe("Content Mirror", Label("mirror"), func() {
	var (
		tempDir      string
		upstream     *helpers.FakeUpstream
		serverHelper *helpers.ServerTestHelper
	)

	startServer := func(opts helpers.ConfigOptions) {
		configFile := helpers.WriteConfigYAML(tempDir, upstream.URL(), opts)
		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, configFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "mirror-test-")
		Expect(err).NotTo(HaveOccurred())

		upstream = helpers.NewFakeUpstream(2)
		upstream.PutEntry("post-1", "blogPost", map[string]any{
			"title":  "First post",
			"hero":   helpers.AssetLink("img-1"),
			"author": helpers.EntryLink("author-1"),
		})
		upstream.PutEntry("author-1", "author", map[string]any{"name": "Ada"})
		upstream.PutAsset("img-1", "//cdn/img-1.png")
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
		}
		upstream.Close()
		Expect(os.RemoveAll(tempDir)).To(Succeed())
	})

	Context("Initial sync", func() {
		It("should mirror every entry and asset across paginated pages", func() {
			startServer(helpers.ConfigOptions{})

			var entries recordsResponse
			serverHelper.GetJSON("/v1/entries", &entries)
			Expect(content.IDs(entries.Items)).To(ConsistOf("post-1", "author-1"))
			Expect(entries.Total).To(Equal(2))

			var assets recordsResponse
			serverHelper.GetJSON("/v1/assets", &assets)
			Expect(content.IDs(assets.Items)).To(Equal([]string{"img-1"}))

			var all recordsResponse
			serverHelper.GetJSON("/v1/all", &all)
			Expect(all.Total).To(Equal(3))
			Expect(all.Items[2].IsAsset()).To(BeTrue(), "assets follow entries")

			Expect(upstream.Requests()).To(ContainElement("initial=true"))
			Expect(upstream.Requests()).To(ContainElement("initial=true&page=1"))
		})
	})

	Context("Delta sync", func() {
		It("should apply updates and deletions on the next read", func() {
			startServer(helpers.ConfigOptions{})

			upstream.PutEntry("post-2", "blogPost", map[string]any{"title": "Second post"})
			upstream.DeleteEntry("author-1")

			var entries recordsResponse
			serverHelper.GetJSON("/v1/entries", &entries)
			Expect(content.IDs(entries.Items)).To(ConsistOf("post-1", "post-2"))
		})

		It("should report the applied changes from POST /v1/sync", func() {
			startServer(helpers.ConfigOptions{})

			upstream.PutAsset("img-2", "//cdn/img-2.png")
			upstream.DeleteAsset("img-1")

			resp, err := serverHelper.Post("/v1/sync")
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result mirrorsync.Result
			Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
			Expect(result.Initial).To(BeFalse())
			Expect(result.AssetsUpserted).To(Equal(1))
			Expect(result.AssetsDeleted).To(Equal(1))
			Expect(result.Cursor).To(Equal("g5"))
		})

		It("should keep serving when nothing changed upstream", func() {
			startServer(helpers.ConfigOptions{})

			resp, err := serverHelper.Post("/v1/sync")
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()

			var result mirrorsync.Result
			Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
			Expect(result.NoOp).To(BeTrue())
		})
	})

	Context("Resolved entries", func() {
		It("should replace links with the linked records and mark broken links", func() {
			upstream.PutEntry("post-3", "blogPost", map[string]any{
				"title":  "Dangling",
				"author": helpers.EntryLink("nobody"),
			})
			startServer(helpers.ConfigOptions{})

			var resolved resolvedResponse
			serverHelper.GetJSON("/v1/entries/resolved", &resolved)
			Expect(resolved.Total).To(Equal(3))

			byID := map[string]map[string]any{}
			for _, item := range resolved.Items {
				byID[item["sys"].(map[string]any)["id"].(string)] = item
			}

			author := localized(byID["post-1"], "author").(map[string]any)
			Expect(author["sys"].(map[string]any)["id"]).To(Equal("author-1"))
			Expect(localized(author, "name")).To(Equal("Ada"))

			hero := localized(byID["post-1"], "hero").(map[string]any)
			Expect(hero["sys"].(map[string]any)["type"]).To(Equal("Asset"))

			broken := localized(byID["post-3"], "author").(map[string]any)
			Expect(broken["unresolved"]).To(Equal("missing"))
		})

		It("should stop at cycles", func() {
			upstream.PutEntry("a", "node", map[string]any{"next": helpers.EntryLink("b")})
			upstream.PutEntry("b", "node", map[string]any{"next": helpers.EntryLink("a")})
			startServer(helpers.ConfigOptions{})

			var resolved resolvedResponse
			serverHelper.GetJSON("/v1/entries/resolved", &resolved)

			for _, item := range resolved.Items {
				if item["sys"].(map[string]any)["id"] != "a" {
					continue
				}
				b := localized(item, "next").(map[string]any)
				back := localized(b, "next").(map[string]any)
				Expect(back["unresolved"]).To(Equal("cycle"))
			}
		})

		It("should honor the configured maximum depth", func() {
			startServer(helpers.ConfigOptions{MaxDepth: 1})

			var resolved resolvedResponse
			serverHelper.GetJSON("/v1/entries/resolved", &resolved)
			for _, item := range resolved.Items {
				if item["sys"].(map[string]any)["id"] != "post-1" {
					continue
				}
				author := localized(item, "author").(map[string]any)
				Expect(author).To(HaveKey("fields"))
			}
		})
	})

	Context("Restart", func() {
		It("should resume from the persisted cursor", func() {
			statePath := filepath.Join(tempDir, "state.json")
			startServer(helpers.ConfigOptions{StatePath: statePath})

			fs, err := state.NewFileStore(statePath)
			Expect(err).NotTo(HaveOccurred())
			Eventually(func() (state.Phase, error) {
				status, err := fs.Load(ctx)
				if err != nil {
					return "", err
				}
				return status.Phase, nil
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(state.PhaseComplete))
			Expect(serverHelper.StopServer()).To(Succeed())

			status, err := fs.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Cursor).To(Equal("g3"))

			upstream.PutEntry("post-2", "blogPost", map[string]any{"title": "Written while down"})
			startServer(helpers.ConfigOptions{StatePath: statePath})

			var entries recordsResponse
			serverHelper.GetJSON("/v1/entries", &entries)
			Expect(content.IDs(entries.Items)).To(ConsistOf("post-1", "author-1", "post-2"))

			initialRounds := 0
			for _, q := range upstream.Requests() {
				if q == "initial=true" {
					initialRounds++
				}
			}
			Expect(initialRounds).To(Equal(1), "the restarted server continues from the cursor")
		})
	})

	Context("Upstream failure", func() {
		It("should fail reads with 502 instead of serving stale data", func() {
			startServer(helpers.ConfigOptions{})
			upstream.Close()

			resp, err := serverHelper.Get("/v1/entries")
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = resp.Body.Close() }()
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		})
	})
})
