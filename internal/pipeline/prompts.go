package pipeline

import (
	"github.com/sells-group/company-aggregator/internal/extract"
)

// FactsSchema is the structured shape both fact fetchers must return.
var FactsSchema = extract.Schema{
	Name:        "company_facts",
	Description: "Public facts about a single company.",
	Fields: []extract.Field{
		{Name: "companyName", Type: extract.FieldString, Description: "Full legal or common company name."},
		{Name: "founded", Type: extract.FieldString, Description: "Year or date the company was founded."},
		{Name: "ticker", Type: extract.FieldString, Description: "Primary stock ticker, empty if private."},
		{Name: "marketCap", Type: extract.FieldString, Description: "Market capitalization in words, e.g. \"3 trillion\"."},
		{Name: "employees", Type: extract.FieldString, Description: "Approximate number of employees."},
		{Name: "businessAreas", Type: extract.FieldStringArray, Description: "Main lines of business."},
		{Name: "competitors", Type: extract.FieldStringArray, Description: "Main competitors."},
	},
}

// NameSchema is the shape returned by the name resolver.
var NameSchema = extract.Schema{
	Name:        "company_name",
	Description: "The canonical name of the company the user is asking about.",
	Fields: []extract.Field{
		{Name: "companyName", Type: extract.FieldString, Description: "Full company name, never a ticker."},
	},
}

// FactsTemplate is shared by both fact fetchers.
var FactsTemplate = extract.Template{
	User: "Provide information about {companyName} including: Founded, Ticker, MarketCap, Employees, BusinessAreas, and Competitors.",
}

// ResolveTemplate turns free-form input into a company name.
var ResolveTemplate = extract.Template{
	System: "Return the answer in the companyName field. " +
		"If the value is a stock ticker, return the full company name instead. " +
		"Just answer the question and do not repeat the question in the result.",
	User: "{userInput}",
}

// MergeTemplate asks the local model to combine two fact records.
var MergeTemplate = extract.Template{
	System: "Follow these rules when combining the two inputs:\n" +
		"1. For companyName, founded, ticker, marketCap and employees: if both inputs have the same value, use it once. " +
		"If the values differ, include both values separated by \" - \", first input first.\n" +
		"2. For businessAreas and competitors: merge duplicated values into a single entry. " +
		"Different values must all be kept as individual entries and never combined with dashes.\n" +
		"3. Do not repeat the question. Return only the aggregated record.",
	User: "Combine INPUT1 and INPUT2 into a single result. INPUT1: {input1} INPUT2: {input2}",
}
