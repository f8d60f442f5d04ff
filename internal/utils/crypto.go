// internal/utils/crypto.go
package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// sealedPrefix 标记经过加密的配置值，便于兼容旧的明文配置
const sealedPrefix = "enc:"

func gcmFor(key string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SealSecret 使用 AES-GCM 加密写入配置文件的密钥，key 为空时原样返回
func SealSecret(plaintext, key string) (string, error) {
	if plaintext == "" || key == "" {
		return plaintext, nil
	}
	gcm, err := gcmFor(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// OpenSecret 解密 SealSecret 的结果，未加密的值原样返回
func OpenSecret(value, key string) (string, error) {
	if len(value) < len(sealedPrefix) || value[:len(sealedPrefix)] != sealedPrefix {
		return value, nil
	}
	if key == "" {
		return "", fmt.Errorf("missing key for sealed value")
	}

	raw, err := base64.StdEncoding.DecodeString(value[len(sealedPrefix):])
	if err != nil {
		return "", err
	}
	gcm, err := gcmFor(key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
