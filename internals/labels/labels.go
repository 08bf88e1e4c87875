// Package labels derives the label set a directory issue carries for its
// partner issue, and parses the prefixed label conventions shared by both.
package labels

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/jadenj13/devpool/internals/issue"
)

const (
	PricePrefix   = "Price: "
	PricingPrefix = "Pricing: "
	PartnerPrefix = "Partner: "
	IDPrefix      = "id: "

	Unavailable  = "Unavailable"
	PriceNotSet  = "Pricing: not set"
	priceKeyword = "Price"
)

// Compute returns the canonical labels for the directory mirror of partner.
// categories maps a project URL to an extra category label.
func Compute(partner issue.Issue, projectURL string, categories map[string]string) []string {
	out := make([]string, 0, len(partner.Labels)+5)

	if price, ok := PriceLabel(partner); ok {
		out = append(out, Canonical(price))
	} else {
		out = append(out, PriceNotSet)
	}

	out = append(out, PartnerPrefix+ownerRepo(projectURL))
	out = append(out, IDPrefix+strings.TrimSpace(partner.ID))

	if partner.IsAssigned() {
		out = append(out, Unavailable)
	}

	for _, l := range partner.Labels {
		// A second or mis-cased price label would otherwise count twice.
		if strings.Contains(l.Name, priceKeyword) || IsPrice(l.Name) || reserved(l.Name) {
			continue
		}
		if !slices.Contains(out, l.Name) {
			out = append(out, l.Name)
		}
	}

	if category, ok := categories[projectURL]; ok && category != "" && !slices.Contains(out, category) {
		out = append(out, category)
	}
	return out
}

// PriceLabel returns the first Price: or Pricing: label on i.
func PriceLabel(i issue.Issue) (string, bool) {
	for _, l := range i.Labels {
		if IsPrice(l.Name) {
			return l.Name, true
		}
	}
	return "", false
}

func IsPrice(name string) bool {
	return strings.HasPrefix(name, PricePrefix) || strings.HasPrefix(name, PricingPrefix)
}

// Canonical rewrites a Price: label into its Pricing: form.
func Canonical(name string) string {
	if rest, ok := strings.CutPrefix(name, PricePrefix); ok {
		return PricingPrefix + rest
	}
	return name
}

// Price parses the amount of a price label such as "Pricing: 200 USD".
func Price(name string) (int, error) {
	rest, ok := strings.CutPrefix(name, PricingPrefix)
	if !ok {
		if rest, ok = strings.CutPrefix(name, PricePrefix); !ok {
			return 0, fmt.Errorf("not a price label: %q", name)
		}
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty price in %q", name)
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", name, err)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("non-finite price in %q", name)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative price in %q", name)
	}
	if n >= math.MaxInt {
		return 0, fmt.Errorf("price out of range in %q", name)
	}
	return int(n), nil
}

// ID returns the trimmed value of the id: label on i.
func ID(i issue.Issue) (string, bool) {
	l, ok := i.LabelWithPrefix(IDPrefix)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(l, IDPrefix)), true
}

// Partner returns the owner/repo recorded in the Partner: label on i.
func Partner(i issue.Issue) (string, bool) {
	l, ok := i.LabelWithPrefix(PartnerPrefix)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(l, PartnerPrefix)), true
}

// reserved reports whether name is a label only the mirror itself may set.
func reserved(name string) bool {
	return strings.HasPrefix(name, IDPrefix) || strings.HasPrefix(name, PartnerPrefix) || name == Unavailable
}

func ownerRepo(projectURL string) string {
	u, err := url.Parse(strings.TrimSpace(projectURL))
	if err != nil || u.Host == "" {
		return strings.Trim(projectURL, "/")
	}
	parts := strings.Split(strings.Trim(strings.TrimSuffix(u.Path, ".git"), "/"), "/")
	if len(parts) < 2 {
		return strings.Join(parts, "/")
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1]
}
