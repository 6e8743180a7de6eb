package forwarding

import "strings"

// Endpoint tags one of the two forwarding destinations
type Endpoint string

const (
	EndpointMarketing Endpoint = "marketing"
	EndpointWhatsApp  Endpoint = "whatsapp"
)

// Router maps a lead category to its destination. Categories in the
// WhatsApp allow-list go to WhatsApp; everything else goes to Marketing.
type Router struct {
	whatsApp map[string]struct{}
	urls     map[Endpoint]string
}

// NewRouter builds a router from the WhatsApp category allow-list and the
// configured destination URLs.
func NewRouter(whatsAppCategories []string, marketingURL, whatsAppURL string) *Router {
	set := make(map[string]struct{}, len(whatsAppCategories))
	for _, c := range whatsAppCategories {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return &Router{
		whatsApp: set,
		urls: map[Endpoint]string{
			EndpointMarketing: marketingURL,
			EndpointWhatsApp:  whatsAppURL,
		},
	}
}

// Select returns the destination for a category. Matching is exact after trimming.
func (r *Router) Select(category string) Endpoint {
	if _, ok := r.whatsApp[strings.TrimSpace(category)]; ok {
		return EndpointWhatsApp
	}
	return EndpointMarketing
}

// URL returns the configured URL of an endpoint
func (r *Router) URL(e Endpoint) string {
	return r.urls[e]
}
