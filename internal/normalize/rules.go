package normalize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Alias maps a fragment of the raw description to a canonical merchant name.
type Alias struct {
	Match string `yaml:"match"`
	Name  string `yaml:"name"`
}

// CategoryRule assigns Name when any keyword appears in the description.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Rules drive merchant cleaning and categorisation.
// Aliases and categories are evaluated in order; the first match wins.
type Rules struct {
	Cities      []string       `yaml:"cities"`
	Boilerplate []string       `yaml:"boilerplate"`
	Aliases     []Alias        `yaml:"aliases"`
	Categories  []CategoryRule `yaml:"categories"`
}

// DefaultRules returns the built-in rule set for Indian bank statements.
func DefaultRules() Rules {
	return Rules{
		Cities: []string{
			"MUMBAI", "NAVI MUMBAI", "DELHI", "NEW DELHI", "BANGALORE", "BENGALURU", "CHENNAI",
			"HYDERABAD", "PUNE", "KOLKATA", "GURGAON", "GURUGRAM", "NOIDA", "AHMEDABAD",
			"JAIPUR", "LUCKNOW", "CHANDIGARH", "KOCHI", "INDORE", "NAGPUR", "SURAT", "THANE",
			"IN", "IND", "INDIA",
		},
		Boilerplate: []string{
			"UPI", "POS", "CARD", "VISA", "MASTERCARD", "RUPAY", "ECOM", "DEBITCARD", "CREDITCARD",
			"NEFT", "IMPS", "RTGS", "NETBANKING", "BILLPAY", "INB", "ATM", "CWDR", "NWD", "ATW",
			"ACH", "NACH", "SI", "MANDATE", "AUTOPAY", "P2M", "P2A", "COLLECT", "REQUEST",
			"TXN", "TRANSACTION", "PAYMENT", "PURCHASE", "REF", "REFNO", "DEBIT", "DR", "CR",
			"ONLINE", "INR", "RS",
		},
		Aliases: []Alias{
			{Match: "NETFLIX", Name: "Netflix"},
			{Match: "SPOTIFY", Name: "Spotify"},
			{Match: "PRIMEVIDEO", Name: "Amazon Prime"},
			{Match: "AMAZON PRIME", Name: "Amazon Prime"},
			{Match: "HOTSTAR", Name: "Disney+ Hotstar"},
			{Match: "JIOCINEMA", Name: "JioCinema"},
			{Match: "YOUTUBE", Name: "YouTube Premium"},
			{Match: "ZOMATO", Name: "Zomato"},
			{Match: "SWIGGY", Name: "Swiggy"},
		},
		Categories: []CategoryRule{
			{Name: "Entertainment", Keywords: []string{"NETFLIX", "SPOTIFY", "HOTSTAR", "PRIME", "PRIMEVIDEO", "JIOCINEMA", "YOUTUBE", "SONYLIV"}},
			{Name: "Food", Keywords: []string{"ZOMATO", "SWIGGY", "STARBUCKS", "DOMINOS", "RESTAURANT", "CAFE"}},
			{Name: "Utilities", Keywords: []string{"ELECTRICITY", "AIRTEL", "JIO", "BROADBAND", "BESCOM", "GAS"}},
			{Name: "Travel", Keywords: []string{"UBER", "OLA", "IRCTC", "INDIGO", "RAPIDO"}},
		},
	}
}

// Merge appends extra rules after r. Built-in entries keep priority.
func (r Rules) Merge(extra Rules) Rules {
	return Rules{
		Cities:      append(append([]string{}, r.Cities...), extra.Cities...),
		Boilerplate: append(append([]string{}, r.Boilerplate...), extra.Boilerplate...),
		Aliases:     append(append([]Alias{}, r.Aliases...), extra.Aliases...),
		Categories:  append(append([]CategoryRule{}, r.Categories...), extra.Categories...),
	}
}

// LoadRules reads a YAML rule file and merges it onto the defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("LoadRules: read %s: %w", path, err)
	}

	var extra Rules
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return Rules{}, fmt.Errorf("LoadRules: parse %s: %w", path, err)
	}

	return DefaultRules().Merge(extra), nil
}
