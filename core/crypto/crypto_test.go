package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	k1 := DeriveKey("secret")
	k2 := DeriveKey("secret")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, DeriveKey("other"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := DeriveKey("secret")
	ct, err := Encrypt("AUTHORIZE|D1|CP1|10", key)
	require.NoError(t, err)
	assert.NotEqual(t, "AUTHORIZE|D1|CP1|10", ct)

	plain, err := Decrypt(ct, key)
	require.NoError(t, err)
	assert.Equal(t, "AUTHORIZE|D1|CP1|10", plain)
}

func TestEncryptNonceVaries(t *testing.T) {
	key := DeriveKey("secret")
	a, err := Encrypt("msg", key)
	require.NoError(t, err)
	b, err := Encrypt("msg", key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptWrongKey(t *testing.T) {
	ct, err := Encrypt("msg", DeriveKey("secret"))
	require.NoError(t, err)
	_, err = Decrypt(ct, DeriveKey("other"))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptGarbage(t *testing.T) {
	key := DeriveKey("secret")
	_, err := Decrypt("not ciphertext at all", key)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = Decrypt("QQ==", key) // valid base64, too short for a nonce
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestKeystorePassthroughWithoutKey(t *testing.T) {
	ks := NewKeystore()
	out, err := ks.EncryptFor("CP1", "REGISTER|CP|CP1")
	require.NoError(t, err)
	assert.Equal(t, "REGISTER|CP|CP1", out)

	in, err := ks.DecryptFrom("CP1", "REGISTER|CP|CP1")
	require.NoError(t, err)
	assert.Equal(t, "REGISTER|CP|CP1", in)
}

func TestKeystoreSealsWithKey(t *testing.T) {
	ks := NewKeystore()
	ks.Set("CP1", DeriveKey("secret"))

	ct, err := ks.EncryptFor("CP1", "HEARTBEAT|CP1|ACTIVATED")
	require.NoError(t, err)
	assert.NotEqual(t, "HEARTBEAT|CP1|ACTIVATED", ct)

	plain, err := ks.DecryptFrom("CP1", ct)
	require.NoError(t, err)
	assert.Equal(t, "HEARTBEAT|CP1|ACTIVATED", plain)

	ks.Forget("CP1")
	_, ok := ks.Key("CP1")
	assert.False(t, ok)
}
