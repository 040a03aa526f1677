package advisor

import (
	"fmt"
	"strings"
)

// SectionFull requests the entire manual instead of a single section.
const SectionFull = "full"

// sectionHeadings lists the H2 headings of a generated manual, in the order
// the generation prompt demands them.
var sectionHeadings = []string{
	"Overview",
	"What's in the Box",
	"Quick Start",
	"Usage",
	"Safety",
	"Care & Maintenance",
	"Troubleshooting",
	"Technical Specs",
	"Warranty & Support",
	"FAQ",
}

// sectionAliases maps request keys (and common synonyms) to manual headings.
var sectionAliases = map[string]string{
	"overview":         "Overview",
	"box":              "What's in the Box",
	"whats_in_the_box": "What's in the Box",
	"quick_start":      "Quick Start",
	"setup":            "Quick Start",
	"usage":            "Usage",
	"how_to_use":       "Usage",
	"safety":           "Safety",
	"care":             "Care & Maintenance",
	"maintenance":      "Care & Maintenance",
	"troubleshooting":  "Troubleshooting",
	"specs":            "Technical Specs",
	"technical_specs":  "Technical Specs",
	"tech_specs":       "Technical Specs",
	"warranty":         "Warranty & Support",
	"support":          "Warranty & Support",
	"faq":              "FAQ",
}

// routeKeys is the set of section keys the routing model may return.
var routeKeys = map[string]struct{}{
	"overview":        {},
	"box":             {},
	"quick_start":     {},
	"usage":           {},
	"troubleshooting": {},
	"safety":          {},
	"care":            {},
	"tech_specs":      {},
	"warranty":        {},
	"faq":             {},
}

// IsSectionKey reports whether key names a routable manual section.
func IsSectionKey(key string) bool {
	_, ok := routeKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// ExtractSection returns the requested section of a generated manual.
//
// An empty or unknown key falls back to Quick Start; SectionFull returns the
// whole document. When the manual lacks the requested heading, a stub
// section is returned so the caller always has something to show.
func ExtractSection(md, key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		k = "quick_start"
	}
	if k == SectionFull {
		return md
	}
	heading, ok := sectionAliases[k]
	if !ok {
		heading = "Quick Start"
	}

	for _, part := range splitSections(md) {
		if strings.HasPrefix(strings.TrimSpace(part), "## "+heading) {
			return strings.TrimSpace(part)
		}
	}
	return fmt.Sprintf("## %s\nNot specified", heading)
}

// splitSections splits a Markdown document at every line that starts a new
// H2 section. The first element holds everything before the first "## ".
func splitSections(md string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(md); i++ {
		if md[i] == '\n' && strings.HasPrefix(md[i+1:], "## ") {
			parts = append(parts, md[start:i+1])
			start = i + 1
		}
	}
	return append(parts, md[start:])
}

// FallbackManual returns the skeleton user guide used when the advisor is
// disabled or fails. Every section the extraction layer may be asked for is
// present, so section lookups never miss.
func FallbackManual(product string) string {
	return fmt.Sprintf(`# %s - User Guide

## Overview
Not specified

## What's in the Box
Not specified

## Quick Start
1. Charge or power the device (if applicable).
2. Follow on-screen or printed setup steps.
3. Test basic operation.

## Usage
Not specified

## Safety
Not specified

## Care & Maintenance
Not specified

## Troubleshooting
- Issue: Not specified
  Fix: Not specified

## Technical Specs
Not specified

## Warranty & Support
Not specified

## FAQ
Not specified
`, product)
}
