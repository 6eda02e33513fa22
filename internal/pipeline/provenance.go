package pipeline

import (
	"golang.org/x/text/cases"

	"github.com/sells-group/company-aggregator/internal/model"
)

// Source says which provider records backed a merged value.
type Source string

const (
	SourceBoth     Source = "both"
	SourceA        Source = "provider_a"
	SourceB        Source = "provider_b"
	SourceConflict Source = "conflict"
	SourceNone     Source = "none"
)

// FieldProvenance describes how one merged field relates to the two
// provider records. Scalars carry both raw values; arrays carry one entry
// per distinct item.
type FieldProvenance struct {
	Field  string           `json:"field" yaml:"field"`
	Source Source           `json:"source" yaml:"source"`
	ValueA string           `json:"value_a,omitempty" yaml:"value_a,omitempty"`
	ValueB string           `json:"value_b,omitempty" yaml:"value_b,omitempty"`
	Items  []ItemProvenance `json:"items,omitempty" yaml:"items,omitempty"`
}

// ItemProvenance is the source of one array entry.
type ItemProvenance struct {
	Value  string `json:"value" yaml:"value"`
	Source Source `json:"source" yaml:"source"`
}

// BuildProvenance compares a and b field by field using the same
// normalization as MergeFacts. Fields are returned in schema order.
func BuildProvenance(a, b model.CompanyFacts) []FieldProvenance {
	fold := cases.Fold()
	out := []FieldProvenance{
		scalarProvenance("companyName", a.CompanyName, b.CompanyName),
		scalarProvenance("founded", a.Founded, b.Founded),
		scalarProvenance("ticker", a.Ticker, b.Ticker),
		scalarProvenance("marketCap", a.MarketCap, b.MarketCap),
		scalarProvenance("employees", a.Employees, b.Employees),
		arrayProvenance(fold, "businessAreas", a.BusinessAreas, b.BusinessAreas),
		arrayProvenance(fold, "competitors", a.Competitors, b.Competitors),
	}
	return out
}

// Agreement is the fraction of non-empty fields both providers agree on.
// It is 0 when no field has a value.
func Agreement(prov []FieldProvenance) float64 {
	var agreed, counted int
	for _, p := range prov {
		if p.Source == SourceNone {
			continue
		}
		counted++
		if p.Source == SourceBoth {
			agreed++
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(agreed) / float64(counted)
}

func scalarProvenance(field, a, b string) FieldProvenance {
	fp := FieldProvenance{Field: field, ValueA: a, ValueB: b}
	na, nb := normalize(a), normalize(b)
	switch {
	case na == "" && nb == "":
		fp.Source = SourceNone
	case na == nb:
		fp.Source = SourceBoth
	case nb == "":
		fp.Source = SourceA
	case na == "":
		fp.Source = SourceB
	default:
		fp.Source = SourceConflict
	}
	return fp
}

// arrayProvenance reports SourceBoth only when every item appears on both
// sides; a partial overlap is a conflict.
func arrayProvenance(fold cases.Caser, field string, a, b []string) FieldProvenance {
	fp := FieldProvenance{Field: field}

	index := make(map[string]int)
	for _, side := range []struct {
		list []string
		src  Source
	}{{a, SourceA}, {b, SourceB}} {
		for _, v := range side.list {
			k := arrayKey(fold, v)
			if k == "" {
				continue
			}
			i, seen := index[k]
			if !seen {
				index[k] = len(fp.Items)
				fp.Items = append(fp.Items, ItemProvenance{Value: normalize(v), Source: side.src})
				continue
			}
			if fp.Items[i].Source != side.src {
				fp.Items[i].Source = SourceBoth
			}
		}
	}

	fp.Source = SourceNone
	sources := make(map[Source]bool, 3)
	for _, it := range fp.Items {
		sources[it.Source] = true
	}
	switch {
	case len(sources) == 0:
	case len(sources) > 1:
		fp.Source = SourceConflict
	case sources[SourceBoth]:
		fp.Source = SourceBoth
	case sources[SourceA]:
		fp.Source = SourceA
	default:
		fp.Source = SourceB
	}
	return fp
}
