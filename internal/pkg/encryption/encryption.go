// Package encryption implements the hybrid scheme protecting attachments
// handed to funders: files are AES-256-CBC encrypted with a per-batch key,
// and the key/IV pair is wrapped with the funder's RSA public key.
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// GenerateAESKey returns a fresh 256-bit key and 128-bit IV.
func GenerateAESKey() (key, iv []byte, err error) {
	key = make([]byte, 32)
	if _, err = rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("encryption: generate key: %w", err)
	}
	iv = make([]byte, aes.BlockSize)
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("encryption: generate iv: %w", err)
	}
	return key, iv, nil
}

// EncryptAESKey wraps the batch key and IV with the funder's RSA public key
// (PEM, PKIX) using OAEP.
func EncryptAESKey(publicKeyPEM string, key, iv []byte) (encryptedKey, encryptedIV []byte, err error) {
	publicKey, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, nil, err
	}

	encryptedKey, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, key, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption: wrap key: %w", err)
	}
	encryptedIV, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, iv, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("encryption: wrap iv: %w", err)
	}
	return encryptedKey, encryptedIV, nil
}

// EncryptFileHybrid encrypts one file body with AES-256-CBC and PKCS#7
// padding.
func EncryptFileHybrid(body, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption: init cipher: %w", err)
	}

	padded := pkcs7Pad(body, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func parsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("encryption: no PEM block in public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("encryption: parse public key: %w", err)
	}
	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("encryption: public key is not RSA")
	}
	return publicKey, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}
