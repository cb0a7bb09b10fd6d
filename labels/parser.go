package labels

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/miekg/dns"
	"github.com/ruteri/docker-dns-registry/interfaces"
)

// DefaultPrefix is the label key recognized when no other prefix is configured.
const DefaultPrefix = "caddy"

var (
	// ErrMissingSuffix is reported for values without a ".<visibility>" suffix.
	ErrMissingSuffix = errors.New("missing visibility suffix")

	// ErrEmptyName is reported for values like ".public".
	ErrEmptyName = errors.New("empty service name")

	// ErrInvalidName is reported for names that are not valid domain names.
	ErrInvalidName = errors.New("invalid service name")
)

// Declaration is a (name, visibility) pair declared by a container label.
type Declaration struct {
	Name       string
	Visibility interfaces.Visibility
}

// ParseError describes one dropped label value element.
type ParseError struct {
	Key   string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("label %s=%q: %v", e.Key, e.Value, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser maps container labels to service declarations.
// The zero value is not usable, use NewParser.
type Parser struct {
	prefix string
}

// NewParser returns a parser recognizing "<prefix>" and "<prefix>_<N>" keys.
// An empty prefix selects DefaultPrefix.
func NewParser(prefix string) *Parser {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Parser{prefix: prefix}
}

// Recognized reports whether key is one of the parser's label keys.
func (p *Parser) Recognized(key string) bool {
	if key == p.prefix {
		return true
	}
	suffix, ok := strings.CutPrefix(key, p.prefix+"_")
	if !ok || suffix == "" {
		return false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Parse returns the declarations found in labels together with one ParseError per
// malformed value element. Malformed elements never prevent the others from being parsed.
// Declarations are de-duplicated; a name declared both public and private keeps both.
func (p *Parser) Parse(labels map[string]string) ([]Declaration, []error) {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		if p.Recognized(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var (
		decls []Declaration
		errs  []error
		seen  = make(map[Declaration]struct{})
	)
	for _, key := range keys {
		for _, element := range splitValue(labels[key]) {
			decl, err := ParseValue(element)
			if err != nil {
				errs = append(errs, &ParseError{Key: key, Value: element, Err: err})
				continue
			}
			if _, dup := seen[decl]; dup {
				continue
			}
			seen[decl] = struct{}{}
			decls = append(decls, decl)
		}
	}
	return decls, errs
}

// ParseValue parses a single "<service-name>.<public|private>" element.
func ParseValue(value string) (Declaration, error) {
	value = strings.TrimSuffix(strings.TrimSpace(value), ".")
	idx := strings.LastIndexByte(value, '.')
	if idx < 0 {
		return Declaration{}, ErrMissingSuffix
	}

	visibility, err := interfaces.ParseVisibility(value[idx+1:])
	if err != nil {
		return Declaration{}, err
	}

	name := interfaces.NormalizeName(value[:idx])
	if name == "" {
		return Declaration{}, ErrEmptyName
	}
	if _, ok := dns.IsDomainName(name); !ok || strings.ContainsAny(name, " /:*@") {
		return Declaration{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return Declaration{Name: name, Visibility: visibility}, nil
}

// Entries combines declarations with a container's addresses into local service entries,
// one per (declaration, address) pair.
func Entries(containerID string, decls []Declaration, addrs []netip.Addr) []interfaces.ServiceEntry {
	entries := make([]interfaces.ServiceEntry, 0, len(decls)*len(addrs))
	seen := make(map[interfaces.ServiceEntry]struct{})
	for _, decl := range decls {
		for _, addr := range addrs {
			if !addr.IsValid() {
				continue
			}
			entry := interfaces.ServiceEntry{
				Name:       decl.Name,
				Address:    addr.Unmap(),
				Visibility: decl.Visibility,
				Origin:     interfaces.Local(containerID),
			}
			if _, dup := seen[entry]; dup {
				continue
			}
			seen[entry] = struct{}{}
			entries = append(entries, entry)
		}
	}
	return entries
}

// splitValue splits a label value listing several site addresses.
func splitValue(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}
