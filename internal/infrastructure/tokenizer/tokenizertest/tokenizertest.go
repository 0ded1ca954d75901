// Package tokenizertest provides a byte-level BPE tokenizer fixture for tests.
//
// The fixture vocabulary holds the special tokens <s>, <pad>, </s> and <unk>
// at ids 0-3 followed by one token per byte, so byte b has id b+4 and no
// merges apply.
package tokenizertest

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/formulalab/formula-gateway/internal/infrastructure/tokenizer"
)

// Special token ids of the fixture
const (
	BOS = 0
	Pad = 1
	EOS = 2
	Unk = 3
)

const byteOffset = 4

// Dir returns the absolute path of the fixture directory
func Dir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "testdata", "bytelevel")
}

// Load loads the fixture decoder
func Load(t testing.TB) *tokenizer.Decoder {
	t.Helper()
	dec, err := tokenizer.Load(Dir())
	require.NoError(t, err)
	return dec
}

// IDs returns the fixture ids for text wrapped in BOS and EOS
func IDs(text string) []int {
	ids := make([]int, 0, len(text)+2)
	ids = append(ids, BOS)
	for _, b := range []byte(text) {
		ids = append(ids, int(b)+byteOffset)
	}
	return append(ids, EOS)
}
