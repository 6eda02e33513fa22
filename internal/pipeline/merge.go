package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/company-aggregator/internal/model"
)

// conflictSep joins two differing scalar values, A first.
const conflictSep = " - "

// Merger reconciles two provider records into one.
type Merger interface {
	Merge(ctx context.Context, a, b *model.CompanyFacts) (model.CompanyFacts, model.TokenUsage, error)
}

// DeterministicMerger applies MergeFacts. It makes no backend calls.
type DeterministicMerger struct{}

// Merge implements Merger.
func (DeterministicMerger) Merge(_ context.Context, a, b *model.CompanyFacts) (model.CompanyFacts, model.TokenUsage, error) {
	if a == nil || b == nil {
		return model.CompanyFacts{}, model.TokenUsage{}, mergeError(eris.New("pipeline: merge input missing"))
	}
	merged, err := MergeFacts(*a, *b)
	return merged, model.TokenUsage{}, err
}

// MergeFacts builds the consensus record of a and b.
//
// Scalars equal after normalization keep A's value; a blank side yields the
// other side; otherwise the result is "a - b". Arrays are unioned by a
// case-folded key, A's entries first. Inputs are not modified.
func MergeFacts(a, b model.CompanyFacts) (model.CompanyFacts, error) {
	if normalize(a.CompanyName) == "" && normalize(b.CompanyName) == "" {
		return model.CompanyFacts{}, mergeError(eris.New("pipeline: companyName missing from both records"))
	}

	fold := cases.Fold()
	return model.CompanyFacts{
		CompanyName:   mergeScalar(a.CompanyName, b.CompanyName),
		Founded:       mergeScalar(a.Founded, b.Founded),
		Ticker:        mergeScalar(a.Ticker, b.Ticker),
		MarketCap:     mergeScalar(a.MarketCap, b.MarketCap),
		Employees:     mergeScalar(a.Employees, b.Employees),
		BusinessAreas: unionStrings(fold, a.BusinessAreas, b.BusinessAreas),
		Competitors:   unionStrings(fold, a.Competitors, b.Competitors),
	}, nil
}

func mergeScalar(a, b string) string {
	na, nb := normalize(a), normalize(b)
	switch {
	case na == nb:
		return strings.TrimSpace(a)
	case na == "":
		return strings.TrimSpace(b)
	case nb == "":
		return strings.TrimSpace(a)
	default:
		return strings.TrimSpace(a) + conflictSep + strings.TrimSpace(b)
	}
}

// unionStrings keeps every distinct entry of a then b. Blank entries are
// dropped. The result is never nil.
func unionStrings(fold cases.Caser, a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			k := arrayKey(fold, v)
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

// normalize applies NFKC and collapses runs of whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

func arrayKey(fold cases.Caser, s string) string {
	return fold.String(normalize(s))
}

// VerifyMerge reports the first way merged departs from MergeFacts(a, b):
// a scalar that differs from the rule merge after normalization, or an
// array entry of either input missing from merged. Array order and
// spelling are free; scalars are not, so a reply that keeps only one side
// of a conflict is rejected.
func VerifyMerge(a, b, merged model.CompanyFacts) error {
	fold := cases.Fold()

	scalars := []struct {
		name      string
		a, b, got string
	}{
		{"companyName", a.CompanyName, b.CompanyName, merged.CompanyName},
		{"founded", a.Founded, b.Founded, merged.Founded},
		{"ticker", a.Ticker, b.Ticker, merged.Ticker},
		{"marketCap", a.MarketCap, b.MarketCap, merged.MarketCap},
		{"employees", a.Employees, b.Employees, merged.Employees},
	}
	for _, s := range scalars {
		want := mergeScalar(s.a, s.b)
		if normalize(s.got) != normalize(want) {
			return eris.Errorf("pipeline: merged %s is %q, want %q", s.name, s.got, want)
		}
	}

	arrays := []struct {
		name      string
		a, b, got []string
	}{
		{"businessAreas", a.BusinessAreas, b.BusinessAreas, merged.BusinessAreas},
		{"competitors", a.Competitors, b.Competitors, merged.Competitors},
	}
	for _, arr := range arrays {
		have := make(map[string]struct{}, len(arr.got))
		for _, v := range arr.got {
			have[arrayKey(fold, v)] = struct{}{}
		}
		for _, v := range append(append([]string{}, arr.a...), arr.b...) {
			k := arrayKey(fold, v)
			if k == "" {
				continue
			}
			if _, ok := have[k]; !ok {
				return eris.Errorf("pipeline: merged %s lost entry %q", arr.name, v)
			}
		}
	}
	return nil
}
