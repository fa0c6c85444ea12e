// Package planner turns a goal and Intent into a concrete Plan by querying
// the capability catalog, prompting an LLM for a step proposal, validating
// the proposal against the menu it was offered, and assembling the
// resulting Plan body in Rtfs20.
package planner

import (
	"sort"
	"strings"

	"goa.design/ccos/capability"
)

// CatalogEntry is one capability offered to the LLM, augmented with the
// input/output field names derived from its schemas so the prompt can state
// a concrete contract instead of an opaque id.
type CatalogEntry struct {
	ID              string
	Name            string
	Description     string
	RequiredInputs  []string
	OptionalInputs  []string
	Outputs         []string
	Score           float64
}

// builtinPrefix marks the built-in namespace the catalog query always
// excludes, regardless of how well a built-in scores against the goal.
const builtinPrefix = "ccos."

// QueryCatalog ranks manifests against goal by keyword overlap (the
// "semantic search with keyword fallback" of the planner dialogue, absent an
// embeddings backend) and returns up to limit entries, highest score first,
// excluding every ccos.* built-in. limit <= 0 means unbounded.
func QueryCatalog(manifests []capability.Manifest, goal string, limit int) []CatalogEntry {
	terms := tokenize(goal)
	entries := make([]CatalogEntry, 0, len(manifests))
	for _, m := range manifests {
		if strings.HasPrefix(m.ID, builtinPrefix) {
			continue
		}
		required, optional := schemaInputs(m.InputSchema)
		entries = append(entries, CatalogEntry{
			ID:             m.ID,
			Name:           m.Name,
			Description:    m.Description,
			RequiredInputs: required,
			OptionalInputs: optional,
			Outputs:        schemaOutputs(m.OutputSchema),
			Score:          score(terms, m),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ID < entries[j].ID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func tokenize(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?:;()\"'")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

// score counts how many goal terms appear in the manifest's id, name, or
// description; a pure keyword fallback used when no semantic index is
// configured.
func score(terms map[string]bool, m capability.Manifest) float64 {
	haystack := tokenize(m.ID + " " + m.Name + " " + m.Description)
	var hits float64
	for t := range terms {
		if haystack[t] {
			hits++
		}
	}
	return hits
}

// schemaInputs splits a JSON-Schema object's declared properties into
// required and optional name lists, sorted for deterministic prompts.
func schemaInputs(schema any) (required, optional []string) {
	m, ok := schema.(map[string]any)
	if !ok {
		return nil, nil
	}
	props, _ := m["properties"].(map[string]any)
	req := map[string]bool{}
	if list, ok := m["required"].([]any); ok {
		for _, r := range list {
			if s, ok := r.(string); ok {
				req[s] = true
			}
		}
	}
	for name := range props {
		if req[name] {
			required = append(required, name)
		} else {
			optional = append(optional, name)
		}
	}
	sort.Strings(required)
	sort.Strings(optional)
	return required, optional
}

// schemaOutputs returns the declared property names of a JSON-Schema
// object's output, sorted for deterministic prompts.
func schemaOutputs(schema any) []string {
	m, ok := schema.(map[string]any)
	if !ok {
		return nil
	}
	props, ok := m["properties"].(map[string]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(props))
	for name := range props {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// declaredInputs is the union of required and optional input names, used by
// proposal validation's "only declared inputs may be supplied" rule.
func (c CatalogEntry) declaredInputs() map[string]bool {
	out := make(map[string]bool, len(c.RequiredInputs)+len(c.OptionalInputs))
	for _, n := range c.RequiredInputs {
		out[n] = true
	}
	for _, n := range c.OptionalInputs {
		out[n] = true
	}
	return out
}
