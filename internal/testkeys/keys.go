/*
Copyright 2026 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package testkeys generates ephemeral signing keys for tests.
//
// Keys are generated on first use and are unique per test binary.
// DO NOT USE THESE KEYS OUTSIDE OF UNIT TESTING.
package testkeys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var (
	ecP256Once  sync.Once
	ecP384Once  sync.Once
	rsa2048Once sync.Once

	ecP256Private  *ecdsa.PrivateKey
	ecP384Private  *ecdsa.PrivateKey
	rsa2048Private *rsa.PrivateKey
)

// ECP256 is the key type Apple issues for API access.
func ECP256() *ecdsa.PrivateKey {
	ecP256Once.Do(func() {
		ecP256Private, _ = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	})
	return ecP256Private
}

func ECP384() *ecdsa.PrivateKey {
	ecP384Once.Do(func() {
		ecP384Private, _ = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	})
	return ecP384Private
}

func RSA2048() *rsa.PrivateKey {
	rsa2048Once.Do(func() {
		rsa2048Private, _ = rsa.GenerateKey(rand.Reader, 2048)
	})
	return rsa2048Private
}

// PKCS8 encodes key the way App Store Connect .p8 files are encoded.
func PKCS8(t testing.TB, key any) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshalling PKCS8 key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// SEC1 encodes key as a traditional "EC PRIVATE KEY" block.
func SEC1(t testing.TB, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshalling EC key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

// WriteFile stores contents in a fresh temp dir and returns the path.
func WriteFile(t testing.TB, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
