package shipping

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestSnapshot writes body gzipped into a temp file.
func createTestSnapshot(t *testing.T, filename, body string) string {
	filePath := filepath.Join(t.TempDir(), filename)

	file, err := os.Create(filePath)
	require.NoError(t, err)
	defer file.Close()

	gzipWriter := pgzip.NewWriter(file)
	_, err = gzipWriter.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, gzipWriter.Close())

	return filePath
}

func TestFileLoader_Load_Success(t *testing.T) {
	path := createTestSnapshot(t, "rates.json.gz", `[
		{"country": "Österreich", "rate": "4.90", "free_shipping_threshold": "50"},
		{"country": "Deutschland", "rate": 7.9, "free_shipping_threshold": 0}
	]`)

	rates, err := NewFileLoader(zerolog.Nop()).Load(context.Background(), path)

	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "Österreich", rates[0].Country)
	assert.True(t, dec("4.90").Equal(rates[0].Rate))
	assert.True(t, dec("50").Equal(rates[0].FreeShippingThreshold))
	assert.True(t, dec("7.9").Equal(rates[1].Rate))
}

func TestFileLoader_Load_FileNotFound(t *testing.T) {
	_, err := NewFileLoader(zerolog.Nop()).Load(context.Background(), "/nonexistent/rates.json.gz")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open rate snapshot")
}

func TestFileLoader_Load_NotGzipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	_, err := NewFileLoader(zerolog.Nop()).Load(context.Background(), path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip")
}

func TestFileLoader_Load_InvalidJSON(t *testing.T) {
	path := createTestSnapshot(t, "broken.json.gz", `{"country":`)

	_, err := NewFileLoader(zerolog.Nop()).Load(context.Background(), path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse rates")
}

func TestFileLoader_Load_ContextCancelled(t *testing.T) {
	path := createTestSnapshot(t, "rates.json.gz", `[]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileLoader(zerolog.Nop()).Load(ctx, path)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotSource_Rates(t *testing.T) {
	path := createTestSnapshot(t, "rates.json.gz", `[{"country": "Schweiz", "rate": "14.90", "free_shipping_threshold": "0"}]`)

	rates, err := NewSnapshotSource(NewFileLoader(zerolog.Nop()), path).Rates(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"Schweiz"}, Countries(rates))
}
