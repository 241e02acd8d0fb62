package artifact

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutThenGetSigned(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	key := RawDocumentKey("job_1", 2, 0)
	url, err := store.Put(context.Background(), key, []byte(`{"title":"x"}`), "application/json")
	require.NoError(t, err)
	assert.Contains(t, url, "raw/job_1/2-0.json")

	signed, err := store.GetSigned(context.Background(), key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, url, signed)
}

func TestLocalStore_GetSignedMissingKeyErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	_, err = store.GetSigned(context.Background(), "reports/job_1/report.md", time.Hour)
	require.Error(t, err)
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", SHA256Hex([]byte("hello")))
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "reports/job_1/report.pdf", ReportKey("job_1", "pdf"))
}
