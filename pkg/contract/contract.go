// pkg/contract/contract.go
package contract

import (
	"fmt"
	"strings"

	"github.com/apifunc/go-apifunc/pkg/descriptor"
)

// Package is the proto package every generated contract lives in.
const Package = "apifunc"

// Method is the single entry point each stage service exposes.
const Method = "Execute"

// Capitalize mirrors the upstream service naming convention: first rune
// upper, remainder lower ("json_to_html" -> "Json_to_html").
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func ServiceName(funcName string) string  { return Capitalize(funcName) + "Service" }
func RequestName(funcName string) string  { return Capitalize(funcName) + "Request" }
func ResponseName(funcName string) string { return Capitalize(funcName) + "Response" }

// FullMethod is the gRPC wire path for a function's Execute operation.
func FullMethod(funcName string) string {
	return fmt.Sprintf("/%s.%s/%s", Package, ServiceName(funcName), Method)
}

// FileName is the deterministic contract file name for a function.
func FileName(funcName string) string { return funcName + ".proto" }

// Generate renders the proto3 contract for a descriptor. Pure: identical
// descriptors yield byte-identical text. Writing the file to disk is the
// compiler's job so contract text stays unit-testable without I/O.
func Generate(d *descriptor.Descriptor) string {
	var b strings.Builder

	fmt.Fprintf(&b, "syntax = \"proto3\";\n\npackage %s;\n\n", Package)
	fmt.Fprintf(&b, "service %s {\n", ServiceName(d.Name))
	fmt.Fprintf(&b, "  rpc %s (%s) returns (%s);\n", Method, RequestName(d.Name), ResponseName(d.Name))
	b.WriteString("}\n\n")

	fmt.Fprintf(&b, "message %s {\n", RequestName(d.Name))
	for i, p := range d.Params {
		fmt.Fprintf(&b, "  string %s = %d;\n", p.Name, i+1)
	}
	b.WriteString("}\n\n")

	fmt.Fprintf(&b, "message %s {\n", ResponseName(d.Name))
	if d.Binary {
		b.WriteString("  bytes result = 1;\n")
	} else {
		b.WriteString("  string result = 1;\n")
	}
	b.WriteString("}\n")

	return b.String()
}
