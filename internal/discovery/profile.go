package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/feeds"
)

// Profile is everything the engine knows about one platform's checkout
// hosts and URL shapes.
type Profile struct {
	Platform domain.Platform
	// Domain is the platform's registrable domain ("clickbank.net").
	Domain string
	// FixedHosts are checkout hosts that carry no vendor.
	FixedHosts []string
	// SKUParam is the query parameter holding the product id.
	SKUParam string
	// TemplateFields are query parameters copied into TemplateParams.
	TemplateFields []string
	// VendorPattern finds a vendor id assigned in inline script; group 1 is the vendor.
	VendorPattern *regexp.Regexp
	// ProductPattern finds product ids anywhere in the page; group 1 is the id.
	ProductPattern *regexp.Regexp
}

// ClickBank is the profile for ClickBank order forms.
var ClickBank = Profile{
	Platform:       domain.PlatformClickBank,
	Domain:         "clickbank.net",
	FixedHosts:     []string{"pay.clickbank.net", "orders.clickbank.net"},
	SKUParam:       "cbitems",
	TemplateFields: feeds.TemplateFields[domain.PlatformClickBank],
	VendorPattern:  regexp.MustCompile(`(?i)\b(?:cb_?vendor|vendor(?:_?id)?)["']?\s*[:=]\s*["']([a-z0-9]{2,})["']`),
	ProductPattern: regexp.MustCompile(`(?i)\bcbitems["']?\s*[=:]\s*["']?([a-z0-9_-]+)`),
}

// Profiles lists the platforms that support checkout discovery.
var Profiles = map[domain.Platform]Profile{
	domain.PlatformClickBank: ClickBank,
}

// VendorHost returns "<vendor>.pay.<domain>".
func (p Profile) VendorHost(vendor string) string {
	return strings.ToLower(vendor) + ".pay." + p.Domain
}

// Hosts returns the recognized checkout hosts: the fixed ones plus the
// vendor host when vendor is known.
func (p Profile) Hosts(vendor string) map[string]bool {
	hosts := make(map[string]bool, len(p.FixedHosts)+1)
	for _, h := range p.FixedHosts {
		hosts[h] = true
	}
	if vendor != "" {
		hosts[p.VendorHost(vendor)] = true
	}
	return hosts
}

// CheckoutURL synthesizes the order form URL for a vendor and product id.
func (p Profile) CheckoutURL(vendor, productID string) string {
	return "https://" + p.VendorHost(vendor) + "/?" + url.QueryEscape(p.SKUParam) + "=" + url.QueryEscape(productID)
}

// VendorFromHost returns the vendor for hosts shaped <vendor>.pay.<domain>
// with at least four labels, or "".
func (p Profile) VendorFromHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	labels := strings.Split(host, ".")
	if len(labels) < 4 || labels[1] != "pay" {
		return ""
	}
	if strings.Join(labels[2:], ".") != p.Domain {
		return ""
	}
	return labels[0]
}

// VendorFromScript returns the first vendor assigned in page script, or "".
func (p Profile) VendorFromScript(html string) string {
	if p.VendorPattern == nil {
		return ""
	}
	if m := p.VendorPattern.FindStringSubmatch(html); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// ProductIDs returns the distinct product ids mentioned in html, in order.
func (p Profile) ProductIDs(html string) []string {
	if p.ProductPattern == nil {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, m := range p.ProductPattern.FindAllStringSubmatch(html, -1) {
		id := m[1]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
