package chat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrustForCertificate(t *testing.T) {
	trust, err := trustForCertificate("")
	require.NoError(t, err)
	require.Nil(t, trust)

	trust, err = trustForCertificate("accept")
	require.NoError(t, err)
	require.True(t, trust.InsecureSkipVerify)
	require.Empty(t, trust.CA)

	pem := "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n"
	trust, err = trustForCertificate(pem)
	require.NoError(t, err)
	require.Equal(t, []byte(pem), trust.CA)

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte(pem), 0o600))
	trust, err = trustForCertificate(path)
	require.NoError(t, err)
	require.Equal(t, []byte(pem), trust.CA)
}
