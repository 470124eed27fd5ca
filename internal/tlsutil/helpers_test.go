package tlsutil

import (
	"crypto/x509"
	"encoding/pem"
)

func pemEncode(typ string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
}

func marshalKey(key any) ([]byte, error) {
	return x509.MarshalPKCS8PrivateKey(key)
}
