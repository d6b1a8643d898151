package host

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lei/pipehost/internal/pipeline"
	"github.com/lei/pipehost/internal/runlog"
)

type nopPipeline struct {
	pipeline.Base
}

func (p *nopPipeline) Meta() pipeline.Meta { return pipeline.Meta{Name: "nop"} }

func (p *nopPipeline) Run(ctx context.Context, params pipeline.Params, log *runlog.Logger) error {
	return nil
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, &nopPipeline{})
	assert.Error(t, err)

	_, err = New(&Config{}, nil)
	assert.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	cfg := &Config{}
	h, err := New(cfg, &nopPipeline{})
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, int64(50), cfg.Runner.MaxDownloadMiB)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotNil(t, h.Controller())
}

func TestHandlerServes(t *testing.T) {
	h, err := New(&Config{}, &nopPipeline{})
	require.NoError(t, err)

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9191
auth:
  api_keys:
    - name: session
      key: top-secret
runner:
  max_download_mib: 5
logging:
  level: debug
  format: text
`), 0o644))

	h, err := NewFromFile(path, &nopPipeline{})
	require.NoError(t, err)
	assert.Equal(t, 9191, h.config.Server.Port)
	require.Len(t, h.config.Auth.APIKeys, 1)
	assert.Equal(t, "top-secret", h.config.Auth.APIKeys[0].Key)
	assert.Equal(t, int64(5), h.config.Runner.MaxDownloadMiB)
}

func TestNewFromFileMissing(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "absent.yaml"), &nopPipeline{})
	assert.Error(t, err)
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("PIPEHOST_PORT", "7070")
	t.Setenv("PIPEHOST_WORK_DIR", "/tmp/envwork")
	t.Setenv("PIPEHOST_API_KEY", "env-key")
	t.Setenv("PIPEHOST_LOG_LEVEL", "warn")
	t.Setenv("PIPEHOST_LOG_FORMAT", "text")

	h, err := NewFromEnv(&nopPipeline{})
	require.NoError(t, err)
	assert.Equal(t, 7070, h.config.Server.Port)
	assert.Equal(t, "/tmp/envwork", h.config.Runner.WorkDir)
	require.Len(t, h.config.Auth.APIKeys, 1)
	assert.Equal(t, "env-key", h.config.Auth.APIKeys[0].Key)
	assert.Equal(t, "warn", h.config.Logging.Level)
}

func TestNewFromEnvBadPort(t *testing.T) {
	t.Setenv("PIPEHOST_PORT", "not-a-port")
	_, err := NewFromEnv(&nopPipeline{})
	assert.Error(t, err)
}
