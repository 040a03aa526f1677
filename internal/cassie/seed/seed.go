// Package seed loads the built-in starter data: the canonical FAQ knowledge
// base and a handful of demo orders for trying the agent out.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cassiedesk/cassie/internal/cassie/faq"
	"github.com/cassiedesk/cassie/internal/cassie/store"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	FAQs []struct {
		Question string   `yaml:"question"`
		Answer   string   `yaml:"answer"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"faqs"`
	Orders []struct {
		OrderID         string `yaml:"order_id"`
		Status          string `yaml:"status"`
		ShippingAddress string `yaml:"shipping_address"`
	} `yaml:"orders"`
}

// Counts reports what a load touched.
type Counts struct {
	FAQs   int
	Orders int
}

// Load upserts the embedded seed data into st. Safe to run repeatedly;
// existing rows are updated in place.
func Load(ctx context.Context, st *store.Store) (Counts, error) {
	var f seedFile
	if err := yaml.Unmarshal(seedYAML, &f); err != nil {
		return Counts{}, fmt.Errorf("failed to parse seed data: %w", err)
	}

	var c Counts
	for _, entry := range f.FAQs {
		kw := faq.NormalizeKeywords(entry.Keywords)
		if _, err := st.UpsertFAQ(ctx, entry.Question, entry.Answer, kw); err != nil {
			return c, fmt.Errorf("failed to seed faq %q: %w", entry.Question, err)
		}
		c.FAQs++
	}
	for _, o := range f.Orders {
		if err := st.UpsertOrder(ctx, o.OrderID, o.Status, o.ShippingAddress); err != nil {
			return c, fmt.Errorf("failed to seed order %s: %w", o.OrderID, err)
		}
		c.Orders++
	}
	return c, nil
}
