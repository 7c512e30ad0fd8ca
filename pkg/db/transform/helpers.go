package transform

import "github.com/mr-tron/base58"

// decodeBase58 decodes instruction data.
// Returns nil for empty input or data that is not valid base58.
func decodeBase58(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil
	}
	return b
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
