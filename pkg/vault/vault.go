// Package vault encrypts and decrypts opaque credential blobs with a
// per-user key derived by the caller. Ciphertext is self-describing:
// hex(iv) + ":" + hex(cipher), AES-CBC with a fresh IV per call.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/nabilpatel4012/smaapi/pkg/apperr"
)

const keyLength = 32

// normalizeKey pads or truncates key material to the AES-256 key length.
// Key material is the owner's stored password hash, never caller input,
// so the derivation only needs to be deterministic.
func normalizeKey(material string) []byte {
	key := make([]byte, keyLength)
	copy(key, material)
	return key
}

// Encrypt seals plaintext under the given key material.
func Encrypt(material, plaintext string) (string, error) {
	block, err := aes.NewCipher(normalizeKey(material))
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	padded := pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Malformed payloads fail with a decrypt_failed
// error; the raw payload is never included in the message.
func Decrypt(material, payload string) (string, error) {
	ivHex, cipherHex, ok := strings.Cut(payload, ":")
	if !ok {
		return "", apperr.New(apperr.CodeDecryptFailed, "cipher payload missing delimiter")
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeDecryptFailed, "decode iv")
	}
	if len(iv) != aes.BlockSize {
		return "", apperr.New(apperr.CodeDecryptFailed, "unexpected iv length")
	}
	data, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeDecryptFailed, "decode cipher text")
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", apperr.New(apperr.CodeDecryptFailed, "cipher text not block aligned")
	}
	block, err := aes.NewCipher(normalizeKey(material))
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	plain, err := unpad(out)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// pad applies PKCS#7 padding up to the AES block size.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, apperr.New(apperr.CodeDecryptFailed, "empty plaintext block")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, apperr.New(apperr.CodeDecryptFailed, "invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, apperr.New(apperr.CodeDecryptFailed, "invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
