package introspect

import (
	"fmt"
	"sort"
	"strings"

	"goa.design/ccos/capability"
	"goa.design/ccos/rtfs"
)

// RenderCapabilityFile renders a synthesized manifest as an RTFS capability
// block: metadata, schemas as type expressions, a permissions/effects
// header, and an implementation stub that calls ccos.network.http-fetch on
// the base URL plus endpoint path, with auth attached. The stub does not
// read the capability's argument.
func RenderCapabilityFile(m capability.Manifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; capability %s\n", m.ID)
	fmt.Fprintf(&b, "; %s\n", m.Description)
	b.WriteString("(capability :" + rtfs.SanitizeCapabilityID(m.ID) + "\n")
	b.WriteString("  :metadata " + renderMetadata(m.Metadata) + "\n")
	b.WriteString("  :permissions [" + strings.Join(quoteAll(m.Permissions), " ") + "]\n")
	b.WriteString("  :effects [" + strings.Join(quoteAll(m.Effects), " ") + "]\n")
	b.WriteString("  :input_schema " + typeExprOrAny(m.InputSchema) + "\n")
	b.WriteString("  :output_schema " + typeExprOrAny(m.OutputSchema) + "\n")
	b.WriteString("  :impl\n")
	b.WriteString(renderImplStub(m))
	b.WriteString(")\n")
	return b.String()
}

func typeExprOrAny(schema any) string {
	t, ok := schema.(rtfs.TypeExpr)
	if !ok {
		return "Any"
	}
	return rtfs.RenderType(t)
}

func renderMetadata(meta map[string]string) string {
	var b strings.Builder
	b.WriteString("{")
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(rtfs.Keyword(k))
		b.WriteString(" ")
		b.WriteString(rtfs.String(meta[k]))
	}
	b.WriteString("}")
	return b.String()
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = rtfs.String(s)
	}
	return out
}

// renderImplStub renders the fallback implementation every synthesized
// capability carries: a ccos.network.http-fetch call on base URL + endpoint
// path with the endpoint's method. The capability's argument is not
// referenced: path templates such as {userId} stay in the URL as written and
// no query or body is built from the input. When the spec declared a security
// scheme, the stub reads the token from the inferred environment variable
// and inserts it as the configured query or header parameter.
func renderImplStub(m capability.Manifest) string {
	baseURL := m.Metadata["base_url"]
	method := m.Metadata["endpoint_method"]
	path := m.Metadata["endpoint_path"]
	urlExpr := rtfs.String(baseURL + path)

	entries := []rtfs.MapEntry{
		{Key: "method", Value: rtfs.String(method)},
	}
	switch m.Metadata["auth_location"] {
	case "query":
		urlExpr = fmt.Sprintf("(str %s %s token)",
			rtfs.String(baseURL+path),
			rtfs.String("?"+m.Metadata["auth_param_name"]+"="))
	case "header":
		headerVal := "token"
		if m.Metadata["auth_type"] == "bearer" {
			headerVal = `(str "Bearer " token)`
		}
		entries = append(entries, rtfs.MapEntry{
			Key:   "headers",
			Value: rtfs.Map([]rtfs.MapEntry{{Key: m.Metadata["auth_param_name"], Value: headerVal}}),
		})
	}
	entries = append(entries, rtfs.MapEntry{Key: "url", Value: urlExpr})
	call := rtfs.Call("ccos.network.http-fetch", rtfs.Map(entries))
	if m.Metadata["auth_env_var"] == "" {
		return "  " + call + "\n"
	}
	tokenExpr := rtfs.Call("ccos.system.env", rtfs.String(m.Metadata["auth_env_var"]))
	return "  " + rtfs.Let([]rtfs.Binding{{Name: "token", Expr: tokenExpr}}, call) + "\n"
}
