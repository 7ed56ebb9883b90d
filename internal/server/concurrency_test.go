package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-coqui-tts/internal/model"
	"github.com/example/go-coqui-tts/internal/server"
	"github.com/example/go-coqui-tts/internal/testutil"
)

func TestTTS_ConcurrentRequestsGetTheirOwnAudio(t *testing.T) {
	// The delay keeps all requests in flight at once.
	host := &testutil.FakeHost{Delay: 30 * time.Millisecond}
	h, dir := newTestHandler(t, host)

	texts := []string{
		"Hi",
		"Hello world",
		"The quick brown fox jumps over the lazy dog",
		strings.Repeat("long ", 30),
	}

	var wg sync.WaitGroup
	recs := make([]*httptest.ResponseRecorder, len(texts))
	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs[i] = get(h, ttsURL(text))
		}()
	}
	wg.Wait()

	for i, rec := range recs {
		require.Equal(t, http.StatusOK, rec.Code, "request %d (body: %s)", i, rec.Body.String())
		testutil.AssertValidWAV(t, rec.Body.Bytes())

		assert.Equal(t, len(texts[i])*testutil.FramesPerChar, testutil.WAVSampleCount(t, rec.Body.Bytes()),
			"request %d (%q): audio belongs to another request", i, texts[i])
	}

	assertNoLeftovers(t, dir)
}

func TestTTS_ConcurrentRequestsThroughSerializedHost(t *testing.T) {
	host := &testutil.FakeHost{Delay: 5 * time.Millisecond}
	h, dir := newTestHandler(t, model.Limit(host, 1))

	const n = 10
	var wg sync.WaitGroup
	recs := make([]*httptest.ResponseRecorder, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs[i] = get(h, ttsURL(strings.Repeat("x", i+1)))
		}()
	}
	wg.Wait()

	for i, rec := range recs {
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, (i+1)*testutil.FramesPerChar, testutil.WAVSampleCount(t, rec.Body.Bytes()), "text len %d", i+1)
	}

	assert.Len(t, host.Calls(), n)
	assertNoLeftovers(t, dir)
}

func TestTTS_RequestTimeoutReturns504(t *testing.T) {
	host := &testutil.FakeHost{Delay: 5 * time.Second}
	h, dir := newTestHandler(t, host, server.WithRequestTimeout(20*time.Millisecond))

	start := time.Now()
	rec := get(h, ttsURL("Hello"))
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Less(t, time.Since(start), 2*time.Second, "timeout not honoured")
	assert.Equal(t, "Synthesis timed out", decodeDetail(t, rec))
	assertNoLeftovers(t, dir)
}
