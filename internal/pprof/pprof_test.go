package pprof

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartServeStop(t *testing.T) {
	h := NewHandler("127.0.0.1:0", nil)
	require.NoError(t, h.Start())
	defer h.Stop()

	resp, err := http.Get(fmt.Sprintf("http://%s/debug/pprof/heap?debug=1", h.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, h.Stop())
	// Stop is idempotent.
	require.NoError(t, h.Stop())
}
