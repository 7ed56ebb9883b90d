package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	readyPollInterval = 250 * time.Millisecond
	maxErrorBody      = 512
)

// RemoteOptions configures a client for a Coqui tts-server.
type RemoteOptions struct {
	BaseURL    string
	ModelID    string
	SpeakerID  string
	LanguageID string
	// Client defaults to a client without a timeout; per-call deadlines come
	// from the request context.
	Client *http.Client
}

// Remote synthesizes through the HTTP API of a running Coqui tts-server,
// which holds the model in memory.
type Remote struct {
	base       *url.URL
	modelID    string
	speakerID  string
	languageID string
	client     *http.Client
}

// NewRemote returns a client without probing the server.
func NewRemote(opts RemoteOptions) (*Remote, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("tts-server URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse tts-server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("tts-server URL %q: scheme must be http or https", raw)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}

	return &Remote{
		base:       base,
		modelID:    opts.ModelID,
		speakerID:  opts.SpeakerID,
		languageID: opts.LanguageID,
		client:     client,
	}, nil
}

// DialRemote returns a client once the server at opts.BaseURL answers its
// index page, or when ctx expires.
func DialRemote(ctx context.Context, opts RemoteOptions) (*Remote, error) {
	r, err := NewRemote(opts)
	if err != nil {
		return nil, err
	}
	if err := r.waitReady(ctx, nil); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Remote) ModelID() string { return r.modelID }

func (r *Remote) Close() error { return nil }

// Ping reports whether the server answers GET / with 200.
func (r *Remote) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base.JoinPath("/").String(), nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

// waitReady polls Ping until it succeeds. A receive on exited aborts the wait
// with the value received.
func (r *Remote) waitReady(ctx context.Context, exited <-chan error) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = r.Ping(ctx); lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w at %s: %v", ErrNotReady, r.base, lastErr)
		case err := <-exited:
			if err == nil {
				err = errors.New("exited")
			}
			return fmt.Errorf("%w: tts-server stopped during startup: %v", ErrNotReady, err)
		case <-ticker.C:
		}
	}
}

func (r *Remote) SynthesizeToFile(ctx context.Context, text, dst string) error {
	q := url.Values{}
	q.Set("text", text)
	q.Set("speaker_id", r.speakerID)
	q.Set("language_id", r.languageID)
	q.Set("style_wav", "")

	u := r.base.JoinPath("/api/tts")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts-server request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return fmt.Errorf("tts-server returned %s", resp.Status)
		}
		return fmt.Errorf("tts-server returned %s: %s", resp.Status, msg)
	}

	if err := writeFile(dst, resp.Body); err != nil {
		return err
	}
	return checkOutput(dst)
}

// writeFile streams src into dst, truncating any existing file. A partial
// file is removed on failure.
func writeFile(dst string, src io.Reader) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	_, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("write output: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close output: %w", closeErr)
	}
	return nil
}
