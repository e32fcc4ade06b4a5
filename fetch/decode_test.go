package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
)

// TestDecodeBody verifies charset detection and forced encodings.
func TestDecodeBody(t *testing.T) {
	text := "양구 시래기 500g 8,900원"
	euckr, err := korean.EUCKR.NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)

	tests := []struct {
		name        string
		body        []byte
		contentType string
		forced      string
	}{
		{"utf-8 passthrough", []byte(text), "text/html", ""},
		{"header charset", euckr, "text/html; charset=EUC-KR", ""},
		{"meta charset", append([]byte(`<meta charset="euc-kr">`), euckr...), "text/html", ""},
		{"forced cp949", euckr, "text/html", "cp949"},
		{"forced utf-8", []byte(text), "text/html; charset=euc-kr", "utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := decodeBody(tt.body, tt.contentType, tt.forced)
			require.NoError(t, err)
			assert.Contains(t, string(out), text)
		})
	}

	_, err = decodeBody([]byte(text), "", "klingon")
	assert.Error(t, err)
}
