package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"time"
)

// newHTTPSource returns the client and URL remote-ls reads. The "local"
// URL serves the generated jar from an in-process server.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newHTTPSource(cfg config, path string) (*nethttp.Client, string, func(), error) {
	if cfg.dataURL == "" {
		return nil, "", nil, errors.New("data-url is required for remote-ls")
	}

	client := newHTTPClient(cfg)
	if cfg.dataURL != "local" {
		return client, cfg.dataURL, func() {}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", nil, err
	}
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "app.jar", time.Time{}, bytes.NewReader(data))
	}))
	return client, server.URL + "/app.jar", server.Close, nil
}

// newHTTPClient returns a client whose transport simulates a slow link
// when latency or bandwidth limits are configured.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newHTTPClient(cfg config) *nethttp.Client {
	var rt nethttp.RoundTripper = nethttp.DefaultTransport
	if t, ok := rt.(*nethttp.Transport); ok {
		rt = t.Clone()
	}
	if cfg.dataHTTPLatency <= 0 && cfg.dataHTTPBPS <= 0 {
		return &nethttp.Client{Transport: rt}
	}
	return &nethttp.Client{Transport: &slowLink{next: rt, delay: cfg.dataHTTPLatency, rate: cfg.dataHTTPBPS}}
}

// slowLink delays each request by delay and paces response bodies to rate
// bytes per second.
type slowLink struct {
	next  nethttp.RoundTripper
	delay time.Duration
	rate  int64
}

func (l *slowLink) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if l.delay > 0 {
		timer := time.NewTimer(l.delay)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		}
	}
	resp, err := l.next.RoundTrip(req)
	if err != nil || l.rate <= 0 || resp.Body == nil {
		return resp, err
	}
	resp.Body = &pacedBody{ReadCloser: resp.Body, rate: l.rate, began: time.Now()}
	return resp, nil
}

// pacedBody sleeps after each read until the bytes seen so far fit the rate.
type pacedBody struct {
	io.ReadCloser
	rate  int64
	began time.Time
	seen  int64
}

func (b *pacedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.seen += int64(n)
	due := b.began.Add(time.Duration(b.seen * int64(time.Second) / b.rate))
	if wait := time.Until(due); wait > 0 {
		time.Sleep(wait)
	}
	return n, err
}

// byteUnits is ordered so two-letter suffixes match before one-letter ones.
var byteUnits = []struct {
	suffix string
	shift  uint
}{
	{"gb", 30}, {"mb", 20}, {"kb", 10},
	{"g", 30}, {"m", 20}, {"k", 10},
}

// parseBytesPerSecond accepts values such as "512", "64k", "10MBps" or "1g/s".
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.ToLower(strings.TrimSpace(value))
	for _, rate := range []string{"bps", "/s"} {
		text = strings.TrimSuffix(text, rate)
	}
	var shift uint
	for _, u := range byteUnits {
		if trimmed, ok := strings.CutSuffix(text, u.suffix); ok {
			text, shift = trimmed, u.shift
			break
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return n << shift, nil
}
