package linky

import (
	"sync"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
)

func TestBearerFromHeaders(t *testing.T) {
	assert.Equal(t, "abc.def", bearerFromHeaders(network.Headers{"authorization": "Bearer abc.def"}))
	assert.Equal(t, "", bearerFromHeaders(network.Headers{"Authorization": "Basic Zm9v"}))
	assert.Equal(t, "", bearerFromHeaders(network.Headers{"Authorization": 42}))
	assert.Equal(t, "", bearerFromHeaders(network.Headers{"Accept": "application/json"}))
}

func requestWithHeaders(headers network.Headers) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{Request: &network.Request{Headers: headers}}
}

func TestTokenCaptureKeepsFirstToken(t *testing.T) {
	c := &tokenCapture{}

	c.observe(&network.EventResponseReceived{})
	c.observe(&network.EventRequestWillBeSent{})
	c.observe(requestWithHeaders(network.Headers{"Accept": "application/json"}))
	assert.Equal(t, "", c.token())

	c.observe(requestWithHeaders(network.Headers{"Authorization": "Bearer first"}))
	c.observe(requestWithHeaders(network.Headers{"Authorization": "Bearer second"}))
	assert.Equal(t, "first", c.token())
}

func TestTokenCaptureConcurrentAccess(t *testing.T) {
	c := &tokenCapture{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.observe(requestWithHeaders(network.Headers{"Authorization": "Bearer abc.def"}))
			}
		}()
	}
	for j := 0; j < 100; j++ {
		_ = c.token()
	}
	wg.Wait()

	assert.Equal(t, "abc.def", c.token())
}
