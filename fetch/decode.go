package fetch

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// decodeBody converts body to UTF-8. A forced encoding wins; otherwise the
// charset comes from the Content-Type header, a BOM or a meta tag.
func decodeBody(body []byte, contentType, forced string) ([]byte, error) {
	enc, err := lookupEncoding(body, contentType, forced)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return body, nil
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("failed to decode body: %w", err)
	}
	return out, nil
}

// lookupEncoding returns nil when the body is already UTF-8.
func lookupEncoding(body []byte, contentType, forced string) (encoding.Encoding, error) {
	if forced != "" {
		switch strings.ToLower(strings.TrimSpace(forced)) {
		case "utf-8", "utf8":
			return nil, nil
		case "euc-kr", "euckr", "cp949", "ks_c_5601-1987", "uhc":
			return korean.EUCKR, nil
		}
		enc, _ := charset.Lookup(forced)
		if enc == nil {
			return nil, fmt.Errorf("unknown encoding %q", forced)
		}
		return enc, nil
	}

	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return nil, nil
	}
	return enc, nil
}
