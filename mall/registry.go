package mall

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownMall is returned when a mall id is not in the registry.
var ErrUnknownMall = errors.New("unknown mall")

// Registry is the set of configured malls, in run order.
type Registry struct {
	Malls []Descriptor `yaml:"malls"`
}

// LoadRegistry reads a YAML mall registry. Every descriptor is validated and
// duplicate ids are rejected.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mall registry: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse mall registry: %w", err)
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}

	return &reg, nil
}

// Validate checks every descriptor and id uniqueness.
func (r *Registry) Validate() error {
	seen := make(map[string]bool, len(r.Malls))
	for _, d := range r.Malls {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate mall id %q", ErrInvalidDescriptor, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// Get returns the descriptor with the given id.
func (r *Registry) Get(id string) (Descriptor, error) {
	for _, d := range r.Malls {
		if d.ID == id {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownMall, id)
}

// Select returns the enabled malls matching ids (all when empty) and region
// (any when empty), in registry order. Naming an unknown id is an error;
// naming a disabled one selects it anyway.
func (r *Registry) Select(ids []string, region string) ([]Descriptor, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, err := r.Get(id); err != nil {
			return nil, err
		}
		wanted[id] = true
	}

	var out []Descriptor
	for _, d := range r.Malls {
		if len(wanted) > 0 && !wanted[d.ID] {
			continue
		}
		if len(wanted) == 0 && d.Disabled {
			continue
		}
		if region != "" && d.Region != region {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Write encodes the registry as YAML.
func (r *Registry) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode mall registry: %w", err)
	}
	return enc.Close()
}

// ParseMallList reads the plain-text mall list format: a line without a URL
// starts a region, and "name (description): url" lines add malls to the
// current region. Lines containing "통합 온라인" are list titles and skipped.
func ParseMallList(r io.Reader) (*Registry, error) {
	reg := &Registry{}
	seen := make(map[string]int)
	region := ""

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.Contains(line, "통합 온라인") {
			continue
		}

		idx := strings.Index(line, ": http")
		if idx < 0 {
			if !strings.Contains(line, "http") {
				region = line
			}
			continue
		}

		label := strings.TrimSpace(line[:idx])
		rawURL := strings.TrimSpace(line[idx+2:])

		name, desc := label, ""
		if open := strings.Index(label, " ("); open >= 0 {
			name = strings.TrimSpace(label[:open])
			desc = strings.TrimSuffix(strings.TrimSpace(label[open+2:]), ")")
		}

		id, err := idFromURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}

		reg.Malls = append(reg.Malls, Descriptor{
			ID:          id,
			Name:        name,
			Region:      region,
			Description: desc,
			BaseURL:     rawURL,
			Platform:    DetectPlatform(rawURL),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mall list: %w", err)
	}

	return reg, nil
}

// idFromURL builds a stable mall id from the host and first path segment,
// e.g. https://smartstore.naver.com/cwmall -> smartstore-naver-com-cwmall.
func idFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid mall URL %q", rawURL)
	}

	parts := []string{strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")}
	if seg := strings.Trim(u.Path, "/"); seg != "" {
		parts = append(parts, strings.SplitN(seg, "/", 2)[0])
	}

	var b strings.Builder
	for _, r := range strings.ToLower(strings.Join(parts, "-")) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		}
	}
	return strings.Trim(b.String(), "-"), nil
}
