package pinsrv

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestServer(t testing.TB) (*httptest.Server, *Registry) {
	t.Helper()

	registry := newTestRegistry(t, []int{17, 22, 27}, []string{"relay", "fan", "relay"})
	srv := NewServer(registry, 0)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts, registry
}

func getBody(t testing.TB, url string) string {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s returned err: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET %s returned status %d, want 200", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading body: %v", err)
	}
	return string(body)
}

func postForm(t testing.TB, url string, form url.Values) string {
	t.Helper()

	resp, err := http.PostForm(url, form)
	if err != nil {
		t.Fatalf("POST %s returned err: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST %s returned status %d, want 200", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading body: %v", err)
	}
	return string(body)
}

func TestGetPin(t *testing.T) {
	ts, registry := newTestServer(t)

	assertStrings(t, getBody(t, ts.URL+"/get/0"), "0")

	registry.SetValue(0, 1)
	assertStrings(t, getBody(t, ts.URL+"/get/0"), "1")
}

func TestGetPinInvalid(t *testing.T) {
	ts, _ := newTestServer(t)

	cases := []string{"/get/3", "/get/-1", "/get/abc", "/get/1.5"}
	for _, path := range cases {
		t.Run(path, func(t *testing.T) {
			assertStrings(t, getBody(t, ts.URL+path), "invalid GPIO")
		})
	}
}

func TestSetPin(t *testing.T) {
	ts, _ := newTestServer(t)

	body := postForm(t, ts.URL+"/set", url.Values{"pin": {"1"}, "state": {"1"}})
	assertStrings(t, body, "OK")
	assertStrings(t, getBody(t, ts.URL+"/get/1"), "1")

	body = postForm(t, ts.URL+"/set", url.Values{"pin": {"1"}, "state": {"0"}})
	assertStrings(t, body, "OK")
	assertStrings(t, getBody(t, ts.URL+"/get/1"), "0")
}

func TestSetPinInvalid(t *testing.T) {
	ts, _ := newTestServer(t)

	body := postForm(t, ts.URL+"/set", url.Values{"pin": {"99"}, "state": {"1"}})
	assertStrings(t, body, "invalid GPIO pin")

	body = postForm(t, ts.URL+"/set", url.Values{"pin": {"abc"}, "state": {"1"}})
	assertStrings(t, body, "invalid GPIO pin")

	body = postForm(t, ts.URL+"/set", url.Values{"state": {"1"}})
	assertStrings(t, body, "invalid GPIO pin")
}

func TestSetPinInvalidState(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, state := range []string{"5", "-1", "on", ""} {
		t.Run(state, func(t *testing.T) {
			body := postForm(t, ts.URL+"/set", url.Values{"pin": {"0"}, "state": {state}})
			assertStrings(t, body, "invalid state")
		})
	}

	// rejected writes never reach the hardware
	assertStrings(t, getBody(t, ts.URL+"/get/0"), "0")
}

func TestGetPinByName(t *testing.T) {
	ts, registry := newTestServer(t)

	assertStrings(t, getBody(t, ts.URL+"/name/get/fan"), "0")

	// relay aliases pins 0 and 2; the last alias decides the reading
	registry.SetValue(0, 1)
	assertStrings(t, getBody(t, ts.URL+"/name/get/relay"), "0")
	registry.SetValue(2, 1)
	assertStrings(t, getBody(t, ts.URL+"/name/get/relay"), "1")

	assertStrings(t, getBody(t, ts.URL+"/name/get/nosuch"), "invalid GPIO name")
}

func TestSetPinByName(t *testing.T) {
	ts, _ := newTestServer(t)

	body := postForm(t, ts.URL+"/name/set", url.Values{"name": {"relay"}, "state": {"1"}})
	assertStrings(t, body, "OK")

	// both aliases must flip
	assertStrings(t, getBody(t, ts.URL+"/get/0"), "1")
	assertStrings(t, getBody(t, ts.URL+"/get/2"), "1")
	assertStrings(t, getBody(t, ts.URL+"/get/1"), "0")

	body = postForm(t, ts.URL+"/name/set", url.Values{"name": {"nosuch"}, "state": {"1"}})
	assertStrings(t, body, "invalid GPIO name")

	body = postForm(t, ts.URL+"/name/set", url.Values{"name": {"relay"}, "state": {"7"}})
	assertStrings(t, body, "invalid state")
}

func TestDumpAll(t *testing.T) {
	ts, registry := newTestServer(t)
	registry.SetValue(1, 1)

	want := "pin: 17 | name: relay | state: 0\npin: 22 | name: fan | state: 1\npin: 27 | name: relay | state: 0\n"
	assertStrings(t, getBody(t, ts.URL+"/gpio"), want)
}

func TestConcurrentSetRequests(t *testing.T) {
	ts, _ := newTestServer(t)

	pins := []string{"0", "1", "2"}
	done := make(chan struct{})
	for _, pin := range pins {
		go func(pin string) {
			defer func() { done <- struct{}{} }()
			resp, err := http.PostForm(ts.URL+"/set", url.Values{"pin": {pin}, "state": {"1"}})
			if err != nil {
				t.Errorf("POST /set for pin %s returned err: %v", pin, err)
				return
			}
			resp.Body.Close()
		}(pin)
	}
	for range pins {
		<-done
	}

	for _, pin := range pins {
		assertStrings(t, getBody(t, ts.URL+"/get/"+pin), "1")
	}
}
