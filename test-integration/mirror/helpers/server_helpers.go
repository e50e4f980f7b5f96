package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"
	"github.com/spf13/viper"

	mirrorapp "github.com/stacklok/content-mirror/internal/app"
	"github.com/stacklok/content-mirror/internal/config"
)

// ServerTestHelper manages the mirror server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	address    string
	httpClient *http.Client
	app        *mirrorapp.MirrorApp
}

// NewServerTestHelper creates a helper for the config at configPath listening on a free port
func NewServerTestHelper(ctx context.Context, configPath string) (*ServerTestHelper, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to find a free port: %w", err)
	}
	address := listener.Addr().String()
	if err := listener.Close(); err != nil {
		return nil, err
	}

	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    "http://" + address,
		address:    address,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// StartServer loads the configuration and starts the server in the background
func (s *ServerTestHelper) StartServer() error {
	// an empty viper keeps CONTENT_MIRROR_* variables of the host out of the test
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath), config.WithViper(viper.New()))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := mirrorapp.NewMirrorApp(s.ctx,
		mirrorapp.WithConfig(cfg),
		mirrorapp.WithAddress(s.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()
	return nil
}

// StopServer gracefully stops the server and closes its store
func (s *ServerTestHelper) StopServer() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Stop(5 * time.Second)
	s.app = nil
	return err
}

// WaitForServerReady waits until the first sync round has been committed
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Get makes a GET request to path
func (s *ServerTestHelper) Get(path string) (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + path)
}

// Post makes an empty POST request to path
func (s *ServerTestHelper) Post(path string) (*http.Response, error) {
	return s.httpClient.Post(s.baseURL+path, "application/json", nil)
}

// GetJSON makes a GET request to path, expects 200 and decodes the body into v
func (s *ServerTestHelper) GetJSON(path string, v any) {
	resp, err := s.Get(path)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK), string(body))
	gomega.Expect(json.Unmarshal(body, v)).To(gomega.Succeed())
}

// ConfigOptions tunes WriteConfigYAML
type ConfigOptions struct {
	SyncInterval string
	MaxDepth     int
	StatePath    string
}

// WriteConfigYAML writes a configuration using a SQLite store under dir
func WriteConfigYAML(dir, upstreamURL string, opts ConfigOptions) string {
	interval := opts.SyncInterval
	if interval == "" {
		// long enough that only reads trigger sync rounds after the first one
		interval = "1h"
	}

	configContent := fmt.Sprintf(`upstream:
  baseURL: %s
  spaceID: %s
  maxRetries: 0
storage:
  type: sqlite
  path: %s
syncPolicy:
  interval: %s
resolution:
  maxDepth: %d
`, upstreamURL, SpaceID, filepath.Join(dir, "mirror.db"), interval, opts.MaxDepth)

	if opts.StatePath != "" {
		configContent += fmt.Sprintf("state:\n  path: %s\n", opts.StatePath)
	}

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(configContent), 0600)).To(gomega.Succeed())
	return path
}
