package dispatch

import (
	"encoding/json"
	"net"
	"net/http"
	"time"
)

// newHTTPClient builds the shared webhook HTTP client with a hard per-call
// timeout. The transport reuses connections across deliveries to the same
// endpoint.
func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}

func encodeNotification(n Notification) ([]byte, error) {
	return json.Marshal(n)
}
