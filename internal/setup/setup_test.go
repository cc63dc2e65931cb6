package setup

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/mikud/internal/config"
	"github.com/briangreenhill/mikud/israelpost"
)

func testConfig(endpoint string) *config.Config {
	cfg := &config.Config{}
	cfg.IsraelPost.Endpoint = endpoint
	cfg.IsraelPost.Timeout = 2 * time.Second
	cfg.Cache.Backend = config.BackendMemory
	cfg.Cache.TTL = time.Minute
	cfg.Cache.MaxEntries = 10
	cfg.Worker.Concurrency = 1
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, "RES86423907")
	}))
	defer srv.Close()

	svc, err := New(context.Background(), testConfig(srv.URL+"/SearchZip?OpenAgent&"), zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	addr := &israelpost.Address{City: "תל אביב", Street: "פרישמן", HouseNumber: "7"}
	for i := 0; i < 3; i++ {
		zip, err := svc.Client.Lookup(context.Background(), addr)
		require.NoError(t, err)
		assert.Equal(t, "6423907", zip)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/")
	cfg.Cache.Backend = config.BackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRedisClientOpt(t *testing.T) {
	cfg := testConfig("http://x/")
	cfg.Redis.Addr = "redis:6379"
	cfg.Redis.DB = 3

	opt := RedisClientOpt(cfg)
	assert.Equal(t, "redis:6379", opt.Addr)
	assert.Equal(t, 3, opt.DB)
}
