package credentials

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

const testClientEmail = "sync@demo-project.iam.gserviceaccount.com"

func generateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	return key, string(pemBytes)
}

func serviceAccountJSON(t *testing.T, pemKey string) []byte {
	t.Helper()

	raw, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "demo-project",
		"private_key_id": "key-1",
		"private_key":    pemKey,
		"client_email":   testClientEmail,
		"token_uri":      DefaultTokenURL,
	})
	require.NoError(t, err)

	return raw
}

func newTestAccount(t *testing.T) *ServiceAccount {
	t.Helper()

	_, pemKey := generateKey(t)

	sa, err := ParseServiceAccount(serviceAccountJSON(t, pemKey))
	require.NoError(t, err)

	return sa
}
