package models

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-varint"

	dErrors "anagolay/pkg/domain-errors"
)

// ContextKind names what a verification is about.
type ContextKind string

const (
	ContextUnbounded                             ContextKind = "unbounded"
	ContextURLForDomain                          ContextKind = "url_for_domain"
	ContextURLForDomainWithSubdomain             ContextKind = "url_for_domain_with_subdomain"
	ContextURLForDomainWithUsername              ContextKind = "url_for_domain_with_username"
	ContextURLForDomainWithUsernameAndRepository ContextKind = "url_for_domain_with_username_and_repository"
)

// Tag bytes of the canonical encoding. Never renumber: stored keys depend on them.
var contextTags = map[ContextKind]byte{
	ContextUnbounded:                             0,
	ContextURLForDomain:                          1,
	ContextURLForDomainWithSubdomain:             2,
	ContextURLForDomainWithUsername:              3,
	ContextURLForDomainWithUsernameAndRepository: 4,
}

const (
	maxHostLen  = 253
	maxLabelLen = 63
	maxFieldLen = 255
)

// Context identifies what is being verified. It is a plain value: two contexts
// with equal fields are the same storage key.
type Context struct {
	Kind       ContextKind `json:"kind" validate:"required"`
	Domain     string      `json:"domain,omitempty"`
	Subdomain  string      `json:"subdomain,omitempty"`
	Username   string      `json:"username,omitempty"`
	Repository string      `json:"repository,omitempty"`
}

func Unbounded() Context {
	return Context{Kind: ContextUnbounded}
}

func URLForDomain(domain string) Context {
	return Context{Kind: ContextURLForDomain, Domain: domain}.Normalize()
}

func URLForDomainWithSubdomain(domain, subdomain string) Context {
	return Context{Kind: ContextURLForDomainWithSubdomain, Domain: domain, Subdomain: subdomain}.Normalize()
}

func URLForDomainWithUsername(domain, username string) Context {
	return Context{Kind: ContextURLForDomainWithUsername, Domain: domain, Username: username}.Normalize()
}

func URLForDomainWithUsernameAndRepository(domain, username, repository string) Context {
	return Context{
		Kind:       ContextURLForDomainWithUsernameAndRepository,
		Domain:     domain,
		Username:   username,
		Repository: repository,
	}.Normalize()
}

// Normalize lowercases the DNS names of the context. Names that differ only
// in case are the same host, so they must encode to the same key.
func (c Context) Normalize() Context {
	c.Domain = strings.ToLower(c.Domain)
	c.Subdomain = strings.ToLower(c.Subdomain)
	return c
}

// fields returns the fields that take part in the encoding, in order.
func (c Context) fields() []string {
	switch c.Kind {
	case ContextURLForDomain:
		return []string{c.Domain}
	case ContextURLForDomainWithSubdomain:
		return []string{c.Domain, c.Subdomain}
	case ContextURLForDomainWithUsername:
		return []string{c.Domain, c.Username}
	case ContextURLForDomainWithUsernameAndRepository:
		return []string{c.Domain, c.Username, c.Repository}
	default:
		return nil
	}
}

// Encode returns the canonical bytes: one tag byte followed by every field as
// uvarint(len) ++ bytes.
func (c Context) Encode() ([]byte, error) {
	tag, ok := contextTags[c.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown context kind %q", c.Kind)
	}
	out := []byte{tag}
	for _, f := range c.fields() {
		out = append(out, varint.ToUvarint(uint64(len(f)))...)
		out = append(out, f...)
	}
	return out, nil
}

// Key is the hex of the canonical encoding, used to index storage.
func (c Context) Key() string {
	b, err := c.Encode()
	if err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// DecodeContext parses the canonical encoding produced by Encode.
func DecodeContext(b []byte) (Context, error) {
	if len(b) == 0 {
		return Context{}, errors.New("empty context encoding")
	}
	var kind ContextKind
	for k, tag := range contextTags {
		if tag == b[0] {
			kind = k
		}
	}
	if kind == "" {
		return Context{}, fmt.Errorf("unknown context tag %d", b[0])
	}

	c := Context{Kind: kind}
	rest := b[1:]
	fields := make([]string, 0, 3)
	for range len(Context{Kind: kind}.fields()) {
		n, read, err := varint.FromUvarint(rest)
		if err != nil {
			return Context{}, fmt.Errorf("decode field length: %w", err)
		}
		rest = rest[read:]
		if uint64(len(rest)) < n {
			return Context{}, errors.New("truncated context encoding")
		}
		fields = append(fields, string(rest[:n]))
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return Context{}, errors.New("trailing bytes in context encoding")
	}

	switch kind {
	case ContextURLForDomain:
		c.Domain = fields[0]
	case ContextURLForDomainWithSubdomain:
		c.Domain, c.Subdomain = fields[0], fields[1]
	case ContextURLForDomainWithUsername:
		c.Domain, c.Username = fields[0], fields[1]
	case ContextURLForDomainWithUsernameAndRepository:
		c.Domain, c.Username, c.Repository = fields[0], fields[1], fields[2]
	}
	return c, nil
}

// DecodeContextKey parses a hex storage key.
func DecodeContextKey(key string) (Context, error) {
	b, err := hex.DecodeString(key)
	if err != nil {
		return Context{}, fmt.Errorf("decode context key: %w", err)
	}
	return DecodeContext(b)
}

// Host is the DNS name a DNS-based strategy queries. The subdomain is a single
// label prepended to the domain.
func (c Context) Host() string {
	switch c.Kind {
	case ContextURLForDomain:
		return strings.ToLower(c.Domain)
	case ContextURLForDomainWithSubdomain:
		return strings.ToLower(c.Subdomain + "." + c.Domain)
	default:
		return ""
	}
}

// Validate checks the fields required by the kind and their shape. DNS names
// must already be lowercase; see Normalize.
func (c Context) Validate() error {
	if _, ok := contextTags[c.Kind]; !ok {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown context kind %q", c.Kind))
	}
	if c.Kind == ContextUnbounded {
		if c.Domain != "" || c.Subdomain != "" || c.Username != "" || c.Repository != "" {
			return dErrors.New(dErrors.CodeValidation, "unbounded context takes no fields")
		}
		return nil
	}
	if err := validateHost(c.Domain); err != nil {
		return err
	}
	switch c.Kind {
	case ContextURLForDomainWithSubdomain:
		if err := validateLabel(c.Subdomain); err != nil {
			return err
		}
	case ContextURLForDomainWithUsername:
		if err := validateField("username", c.Username); err != nil {
			return err
		}
	case ContextURLForDomainWithUsernameAndRepository:
		if err := validateField("username", c.Username); err != nil {
			return err
		}
		if err := validateField("repository", c.Repository); err != nil {
			return err
		}
	}
	return nil
}

func (c Context) String() string {
	if host := c.Host(); host != "" {
		return string(c.Kind) + ":" + host
	}
	parts := []string{string(c.Kind)}
	for _, f := range c.fields() {
		parts = append(parts, f)
	}
	return strings.Join(parts, ":")
}

func validateHost(host string) error {
	if host == "" {
		return dErrors.New(dErrors.CodeValidation, "domain is required")
	}
	if len(host) > maxHostLen {
		return dErrors.New(dErrors.CodeValidation, "domain is too long")
	}
	for _, label := range strings.Split(host, ".") {
		if err := validateLabel(label); err != nil {
			return err
		}
	}
	return nil
}

func validateLabel(label string) error {
	if label == "" || len(label) > maxLabelLen {
		return dErrors.New(dErrors.CodeValidation, "invalid domain label")
	}
	for i, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i != 0 && i != len(label)-1:
		case r == '_' && i == 0:
		default:
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid character %q in domain label", r))
		}
	}
	return nil
}

func validateField(name, v string) error {
	if v == "" {
		return dErrors.New(dErrors.CodeValidation, name+" is required")
	}
	if len(v) > maxFieldLen {
		return dErrors.New(dErrors.CodeValidation, name+" is too long")
	}
	if strings.ContainsAny(v, " \t\r\n/") {
		return dErrors.New(dErrors.CodeValidation, name+" contains invalid characters")
	}
	return nil
}
