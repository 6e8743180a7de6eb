package testdata

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/leadbridge/pkg/models"
)

// LeadGeneratorConfig configures lead generation parameters
type LeadGeneratorConfig struct {
	Seed           int64   // 0 picks a random seed
	City           string  // empty picks a random city
	Category       string  // empty picks a random category
	WhatsAppChance float64 // 0.0-1.0 (probability of a WhatsApp category)
	EmailChance    float64
	MobileChance   float64
	PrefixChance   float64
}

// DefaultConfig returns a config producing complete leads
func DefaultConfig() LeadGeneratorConfig {
	return LeadGeneratorConfig{
		WhatsAppChance: 0.3,
		EmailChance:    0.8,
		MobileChance:   0.9,
		PrefixChance:   0.5,
	}
}

// Cities leads are spread across
var Cities = []string{
	"Mumbai", "Delhi", "Bengaluru", "Hyderabad", "Chennai",
	"Kolkata", "Pune", "Ahmedabad", "Jaipur", "Navi Mumbai",
}

// MarketingCategories route to the marketing endpoint
var MarketingCategories = []string{
	"Digital Marketing Services", "SEO Services", "Web Designers",
	"Social Media Marketing", "Event Organisers", "Interior Designers",
}

// WhatsAppCategories route to the WhatsApp endpoint with the default allow-list
var WhatsAppCategories = []string{
	"WhatsApp Marketing Services", "Bulk WhatsApp Services",
	"WhatsApp Business API Services", "WhatsApp Chatbot Services",
}

var prefixes = []string{"Mr", "Ms", "Dr"}

// Generator produces webhook payloads and lead records
type Generator struct {
	faker  *gofakeit.Faker
	config LeadGeneratorConfig
	seq    int
}

// NewGenerator creates a generator. A fixed seed yields a fixed sequence.
func NewGenerator(config LeadGeneratorConfig) *Generator {
	return &Generator{faker: gofakeit.New(config.Seed), config: config}
}

// RawLead returns a valid webhook payload as the intake endpoint receives it
func (g *Generator) RawLead() map[string]any {
	g.seq++
	f := g.faker

	raw := map[string]any{
		"leadid":    fmt.Sprintf("LD-%s-%d", f.UUID(), g.seq),
		"leadtype":  f.RandomString([]string{"company", "category"}),
		"name":      f.Company(),
		"phone":     "022-" + f.DigitN(7),
		"date":      f.DateRange(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)).Format("2006-01-02"),
		"time":      fmt.Sprintf("%02d:%02d:%02d", f.Number(0, 23), f.Number(0, 59), f.Number(0, 59)),
		"category":  g.category(),
		"city":      g.city(),
		"area":      f.Street(),
		"pincode":   f.DigitN(6),
		"dncmobile": f.Number(0, 1),
		"dncphone":  "0",
	}
	if f.Float64() < g.config.PrefixChance {
		raw["prefix"] = f.RandomString(prefixes)
	}
	if f.Float64() < g.config.MobileChance {
		raw["mobile"] = "+91 " + f.DigitN(10)
	}
	if f.Float64() < g.config.EmailChance {
		raw["email"] = f.Email()
	}
	return raw
}

// RawLeads returns count payloads
func (g *Generator) RawLeads(count int) []map[string]any {
	out := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, g.RawLead())
	}
	return out
}

// Lead returns a pending lead record ready to insert
func (g *Generator) Lead() *models.Lead {
	raw := g.RawLead()
	date, _ := time.Parse("2006-01-02", raw["date"].(string))

	lead := &models.Lead{
		LeadID:   raw["leadid"].(string),
		LeadType: raw["leadtype"].(string),
		Name:     raw["name"].(string),
		Phone:    raw["phone"].(string),
		Date:     date,
		Time:     raw["time"].(string),
		Category: raw["category"].(string),
		City:     raw["city"].(string),
		Area:     raw["area"].(string),
		Pincode:  raw["pincode"].(string),
		Status:   models.StatusPending,
	}
	if v, ok := raw["prefix"].(string); ok {
		lead.Prefix = v
	}
	if v, ok := raw["mobile"].(string); ok {
		lead.Mobile = v
	}
	if v, ok := raw["email"].(string); ok {
		lead.Email = v
	}
	return lead
}

func (g *Generator) category() string {
	if g.config.Category != "" {
		return g.config.Category
	}
	if g.faker.Float64() < g.config.WhatsAppChance {
		return g.faker.RandomString(WhatsAppCategories)
	}
	return g.faker.RandomString(MarketingCategories)
}

func (g *Generator) city() string {
	if g.config.City != "" {
		return g.config.City
	}
	return g.faker.RandomString(Cities)
}
