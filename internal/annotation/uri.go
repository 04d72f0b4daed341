package annotation

import "strings"

const (
	viaPrefixH    = "via.hypothes.is/h/"
	viaPrefixBare = "via.hypothes.is/"
	urnPDFPrefix  = "urn:x-pdf:"
)

// NormalizeURI collapses the various forms Hypothesis uses to reference
// the same document down to one canonical string, applied in order:
// urn:x-pdf: substitution, scheme strip, query-segment strip,
// via.hypothes.is proxy-prefix strip. The proxy prefix is checked after
// the outer scheme has already been removed, so a wrapped URL's own
// scheme (e.g. the "https://" inside via.hypothes.is/h/https://...) is
// left untouched.
func NormalizeURI(uri string, doc Document) string {
	if strings.HasPrefix(uri, urnPDFPrefix) {
		for _, link := range doc.Link {
			if !strings.HasPrefix(link.Href, "urn:") {
				uri = link.Href
				break
			}
		}
		if strings.HasPrefix(uri, urnPDFPrefix) && doc.Filename != "" {
			uri = doc.Filename
		}
	}

	uri = stripScheme(uri)

	if idx := strings.Index(uri, "?hypothesisAnnotationId="); idx != -1 {
		uri = uri[:idx]
	}

	switch {
	case strings.HasPrefix(uri, viaPrefixH):
		uri = strings.TrimPrefix(uri, viaPrefixH)
	case strings.HasPrefix(uri, viaPrefixBare):
		uri = strings.TrimPrefix(uri, viaPrefixBare)
	}

	return uri
}

func stripScheme(uri string) string {
	if idx := strings.Index(uri, "://"); idx != -1 {
		return uri[idx+len("://"):]
	}
	return uri
}
