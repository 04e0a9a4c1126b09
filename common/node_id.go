package common

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidNodeID = errors.New("invalid node id")

const nodeIDSeparator = ":"

// EncodeNodeID builds an opaque global id carrying the type name.
func EncodeNodeID(typeName string, key string) string {
	return base64.StdEncoding.EncodeToString([]byte(typeName + nodeIDSeparator + key))
}

// DecodeNodeID extracts type name and key from an opaque global id.
func DecodeNodeID(id string) (typeName string, key string, err error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(id)
		if err != nil {
			return "", "", fmt.Errorf("%w %q: %s", ErrInvalidNodeID, id, err)
		}
	}

	typeName, key, ok := strings.Cut(string(raw), nodeIDSeparator)
	if !ok || typeName == "" {
		return "", "", fmt.Errorf("%w %q: missing type name", ErrInvalidNodeID, id)
	}

	return typeName, key, nil
}
