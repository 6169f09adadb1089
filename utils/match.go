package utils

import "strings"

// NormalizeSpace strips leading and trailing XML whitespace, as
// string-normalize-space does; whitespace inside the string is left as is.
func NormalizeSpace(s string) string {
	return strings.Trim(s, " \t\n\r")
}

// MatchRFC822Name implements the rfc822Name-match rules: the pattern is
// either a full mailbox ("anne@sun.com", local part case-sensitive), a
// domain ("sun.com", any mailbox in exactly that domain), or a partial
// domain (".east.sun.com", any mailbox in that domain or a subdomain).
// Domains compare case-insensitively.
func MatchRFC822Name(pattern, name string) bool {
	local, domain, ok := strings.Cut(name, "@")
	if !ok {
		return false
	}
	domain = strings.ToLower(domain)

	if pLocal, pDomain, full := strings.Cut(pattern, "@"); full {
		return local == pLocal && domain == strings.ToLower(pDomain)
	}
	p := strings.ToLower(pattern)
	if strings.HasPrefix(p, ".") {
		return strings.HasSuffix("."+domain, p)
	}
	return domain == p
}

// MatchX500Name reports whether the pattern distinguished name matches the
// terminal sequence of RDNs of name, comparing case-insensitively with
// whitespace around separators ignored.
func MatchX500Name(pattern, name string) bool {
	p := splitRDNs(pattern)
	n := splitRDNs(name)
	if len(p) == 0 || len(p) > len(n) {
		return false
	}
	offset := len(n) - len(p)
	for i, rdn := range p {
		if !strings.EqualFold(rdn, n[offset+i]) {
			return false
		}
	}
	return true
}

func splitRDNs(dn string) []string {
	parts := strings.Split(dn, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
