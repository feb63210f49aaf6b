package credentials_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dataplatform/internal/credentials"
)

func TestSet(t *testing.T) {
	t.Parallel()

	s := credentials.Set{"fmp_api_key": "abc123", "fred_api_key": "zzz999", "empty": ""}

	require.Equal(t, credentials.Set{"fmp_api_key": "abc123"}, s.Subset([]string{"fmp_api_key", "empty", "nope"}))
	require.Equal(t, []string{"empty", "nope"}, s.Missing([]string{"fmp_api_key", "empty", "nope"}))
	require.Equal(t, "url?apikey=*** and ***", s.Scrub("url?apikey=abc123 and zzz999"))

	fp := s.Fingerprint()
	require.Len(t, fp, 16)
	require.NotContains(t, fp, "abc123")
	require.Equal(t, fp, credentials.Set{"fred_api_key": "zzz999", "fmp_api_key": "abc123", "empty": ""}.Fingerprint())
	require.NotEqual(t, fp, credentials.Set{"fmp_api_key": "other"}.Fingerprint())
	require.Empty(t, credentials.Set{}.Fingerprint())
}

func TestScrubValues_LongestFirst(t *testing.T) {
	t.Parallel()

	s := credentials.Set{"a": "key", "b": "keychain"}
	require.Equal(t, "token=***", s.Scrub("token=keychain"))
}

func TestStore_EnvOnlyWhenSettingUnset(t *testing.T) {
	t.Parallel()

	// Arrange
	env := map[string]string{"FMP_API_KEY": "from-env", "FRED_API_KEY": "fred-env"}
	store, err := credentials.NewStore(map[string]string{"fmp_api_key": "from-settings", "fred_api_key": ""})
	require.NoError(t, err)
	store.WithLookup(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	// Act
	got := store.Resolve([]string{"fmp_api_key", "fred_api_key", "tiingo_token"})

	// Assert
	require.Equal(t, credentials.Set{"fmp_api_key": "from-settings", "fred_api_key": "fred-env"}, got)
}

func TestStore_Dotenv(t *testing.T) {
	t.Parallel()

	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FRED_API_KEY=dot\nFMP_API_KEY=dot-fmp\n"), 0o600))
	store, err := credentials.NewStore(nil, path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	store.WithLookup(func(k string) (string, bool) {
		if k == "FMP_API_KEY" {
			return "real-env", true
		}
		return "", false
	})

	// Act / Assert
	require.Equal(t, "dot", store.Get("fred_api_key"))
	require.Equal(t, "real-env", store.Get("fmp_api_key"))
	require.ElementsMatch(t, []string{"dot", "real-env"}, store.Secrets([]string{"fred_api_key", "fmp_api_key"}))
}
