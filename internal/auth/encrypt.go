package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// The portal's login page encrypts the password in the browser before
// posting it whenever the form carries a pwdEncryptSalt field:
// AES-CBC(key=salt, iv=16 random chars) over 64 random chars + password,
// PKCS#7 padded, base64 encoded.
const aesChars = "ABCDEFGHJKMNPQRSTWXYZabcdefhijkmnprstwxyz2345678"

func encryptPassword(password, salt string) (string, error) {
	key := []byte(salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}
	prefix, err := randomChars(64)
	if err != nil {
		return "", err
	}
	iv, err := randomChars(aes.BlockSize)
	if err != nil {
		return "", err
	}
	plain := pkcs7Pad([]byte(prefix+password), aes.BlockSize)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out), nil
}

func randomChars(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(aesChars)))
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = aesChars[v.Int64()]
	}
	return string(b), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}
