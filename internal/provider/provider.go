// Package provider maps raw organization labels onto hosting-provider categories.
package provider

import "strings"

// Provider categories.
const (
	AWS          = "AWS"
	GoogleCloud  = "Google Cloud"
	Azure        = "Azure"
	Hetzner      = "Hetzner"
	OVH          = "OVH"
	DigitalOcean = "DigitalOcean"
	Starlink     = "Starlink"
	OtherCloud   = "Other Cloud"
	HomeISP      = "Home/ISP"
)

type rule struct {
	category string
	markers  []string
}

// Checked in order; the first matching marker wins.
var rules = []rule{
	{AWS, []string{"AWS", "AMAZON"}},
	{GoogleCloud, []string{"GOOGLE", "GCP"}},
	{Azure, []string{"AZURE", "MICROSOFT"}},
	{Hetzner, []string{"HETZNER"}},
	{OVH, []string{"OVH"}},
	{DigitalOcean, []string{"DIGITALOCEAN", "DIGITAL OCEAN"}},
	{Starlink, []string{"STARLINK", "SPACEX"}},
}

// Categorize returns the provider category for an organization label. Labels
// matching no known provider fall back to Other Cloud when the node is flagged
// as hosted and to Home/ISP otherwise. An empty label stays empty.
func Categorize(org string, hosting bool) string {
	org = strings.TrimSpace(org)
	if org == "" {
		return ""
	}
	upper := strings.ToUpper(org)
	for _, r := range rules {
		for _, m := range r.markers {
			if strings.Contains(upper, m) {
				return r.category
			}
		}
	}
	if hosting {
		return OtherCloud
	}
	return HomeISP
}

// Categories lists every category Categorize can return.
func Categories() []string {
	out := make([]string, 0, len(rules)+2)
	for _, r := range rules {
		out = append(out, r.category)
	}
	return append(out, OtherCloud, HomeISP)
}
