package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfbridge/cmd/compactserv/config"
	"cfbridge/pkg/record"
	"cfbridge/pkg/util"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.DB.Dir = t.TempDir()
	cfg.DB.MemtableEntries = 0
	cfg.DB.DisableAutoCompactions = true
	cfg.HttpMonAddr = "127.0.0.1:0"
	cfg.StatsLogInterval = util.Duration{}
	cfg.ShutdownWaitTime = util.Duration{Duration: time.Second}
	return &cfg
}

func putRecords(t *testing.T, s *Server, ns string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		rec := &record.Record{
			RecordHeader: record.RecordHeader{
				Version:        1,
				CreationTime:   util.Now(),
				ExpirationTime: util.GetExpirationTime(3600),
				RequestId:      record.NewRequestId(),
			},
			Payload: record.NewPayload([]byte("value")),
		}
		key := record.NewRecordID(uint16(i%4), 0, []byte(ns), []byte(fmt.Sprintf("key%03d", i)))
		require.NoError(t, s.DB().Put(key, rec.Encode()))
	}
}

func call(t *testing.T, method string, url string, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestServerMonitor(t *testing.T) {
	s, err := NewServer(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	base := "http://" + s.Addr()

	putRecords(t, s, "ns1", 30)
	putRecords(t, s, "ns2", 20)

	code, body := call(t, http.MethodPost, base+"/rules", "Type = \"namespace_delete\"\n[[Delete]]\n  Namespace = \"ns1\"\n")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "OK namespaces=1\n", body)

	code, body = call(t, http.MethodPost, base+"/compact", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "OK runs=1 entries=20\n", body)

	code, body = call(t, http.MethodGet, base+"/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "manual=1")
	assert.Contains(t, body, "RecordStoreFilters")

	code, body = call(t, http.MethodGet, base+"/stats/html", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Compaction Filters")
	assert.Contains(t, body, "Server Info")
	assert.NotContains(t, body, "http-equiv")

	code, body = call(t, http.MethodGet, base+"/stats/html?refresh=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `<meta http-equiv="refresh" content="5">`)

	code, body = call(t, http.MethodGet, base+"/version", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "cfbridge")

	code, _ = call(t, http.MethodPost, base+"/rules", "Type = [")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, http.MethodPost, base+"/compact?start=zz", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, http.MethodDelete, base+"/rules", "")
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, s.filters.Namespace.Active())

	code, body = call(t, http.MethodPost, base+"/shard/7", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK shard=7\n", body)
	assert.Equal(t, int32(7), s.filters.Shard.ShardNum())
	code, _ = call(t, http.MethodPost, base+"/shard/70000", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = call(t, http.MethodDelete, base+"/shard", "")
	assert.Equal(t, http.StatusOK, code)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	factories, filters := s.bridge.Outstanding()
	assert.Equal(t, 0, factories)
	assert.Equal(t, 0, filters)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/compact", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPeriodicCompaction(t *testing.T) {
	cfg := testConfig(t)
	cfg.HttpMonAddr = ""
	cfg.CompactionInterval = util.Duration{Duration: 20 * time.Millisecond}

	s, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Equal(t, "", s.Addr())

	putRecords(t, s, "ns", 10)
	require.Eventually(t, func() bool {
		st := s.DB().Stats()
		return st.ManualCompactions > 0 && st.Entries == 10 && st.Runs == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewServerInvalidFilters(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filters.EventFile = cfg.DB.Dir + "/missing.toml"
	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusOf(fmt.Errorf("plain")))
}
