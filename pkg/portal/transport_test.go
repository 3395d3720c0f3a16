package portal_test

import (
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirhub/verify-backend/pkg/portal"
)

func TestNewInsecureTransport_Intercepted(t *testing.T) {
	// gock swaps http.DefaultTransport for its own round tripper
	gock.Intercept()
	defer gock.Off()

	var tr *http.Transport
	require.NotPanics(t, func() { tr = portal.NewInsecureTransport() })
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.NotNil(t, tr.Proxy)
	assert.NotNil(t, tr.DialContext)

	assert.NotPanics(t, func() { portal.NewClient() })
}

func TestNewCATransport(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	caPath := filepath.Join(t.TempDir(), "ca.pem")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(caPath, caPEM, 0o600))

	gock.Intercept()
	var tr *http.Transport
	var err error
	require.NotPanics(t, func() { tr, err = portal.NewCATransport(caPath) })
	gock.Off()
	require.NoError(t, err)
	assert.NotNil(t, tr.TLSClientConfig.RootCAs)
	assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)

	c := portal.NewClient()
	c.SetHttpTransport(tr)
	doc, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(doc.Body))

	// the default client does not trust the test server's certificate
	_, err = http.DefaultClient.Get(srv.URL)
	assert.Error(t, err)
}

func TestNewCATransport_Invalid(t *testing.T) {
	dir := t.TempDir()
	_, err := portal.NewCATransport(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)

	key := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(key, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1}}), 0o600))
	_, err = portal.NewCATransport(key)
	assert.ErrorContains(t, err, "expected CERTIFICATE")

	empty := filepath.Join(dir, "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not pem"), 0o600))
	_, err = portal.NewCATransport(empty)
	assert.ErrorContains(t, err, "no certificate found")
}
