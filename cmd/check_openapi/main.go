package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	schemaRefPrefix   = "#/components/schemas/"
	responseRefPrefix = "#/components/responses/"
)

type openAPIDoc struct {
	Paths      map[string]pathItem `yaml:"paths"`
	Components struct {
		Schemas   map[string]schema   `yaml:"schemas"`
		Responses map[string]response `yaml:"responses"`
	} `yaml:"components"`
}

type pathItem struct {
	Get    *operation `yaml:"get"`
	Post   *operation `yaml:"post"`
	Put    *operation `yaml:"put"`
	Delete *operation `yaml:"delete"`
}

type operation struct {
	RequestBody *struct {
		Content map[string]mediaType `yaml:"content"`
	} `yaml:"requestBody"`
	Responses map[string]response `yaml:"responses"`
}

type response struct {
	Ref     string               `yaml:"$ref"`
	Content map[string]mediaType `yaml:"content"`
}

type mediaType struct {
	Schema schema `yaml:"schema"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// servedRoutes lists every method and path the tracker server answers.
var servedRoutes = map[string][]string{
	"/healthz":             {"get"},
	"/register":            {"post"},
	"/login":               {"post"},
	"/logout":              {"post"},
	"/users/me":            {"get"},
	"/books":               {"get", "post"},
	"/books/{id}":          {"get", "put", "delete"},
	"/books/{id}/pdf":      {"get"},
	"/books/{id}/progress": {"get", "post"},
	"/books/{id}/reviews":  {"get", "post"},
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := check(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(doc openAPIDoc) error {
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errResp); err != nil {
		return err
	}
	if err := validateRoutes(doc); err != nil {
		return err
	}
	return validateRefs(doc)
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

// validateErrorResponse matches the envelope written by the server's writeError.
func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	if required["request_id"] {
		return errors.New("ErrorResponse.request_id must be optional")
	}
	for _, field := range []string{"error", "code", "request_id"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	return nil
}

func validateRoutes(doc openAPIDoc) error {
	var missing []string
	for path, methods := range servedRoutes {
		item, ok := doc.Paths[path]
		if !ok {
			missing = append(missing, path)
			continue
		}
		documented := item.methods()
		for _, method := range methods {
			if documented[method] == nil {
				missing = append(missing, strings.ToUpper(method)+" "+path)
			}
		}
	}
	for path := range doc.Paths {
		if _, ok := servedRoutes[path]; !ok {
			return fmt.Errorf("path %q is documented but not served", path)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("undocumented routes: %s", strings.Join(missing, ", "))
	}
	return nil
}

func validateRefs(doc openAPIDoc) error {
	for name, s := range doc.Components.Schemas {
		if err := resolveSchema(doc, "schema "+name, s); err != nil {
			return err
		}
	}
	for path, item := range doc.Paths {
		for method, op := range item.methods() {
			if op == nil {
				continue
			}
			scope := strings.ToUpper(method) + " " + path
			if op.RequestBody != nil {
				for ct, media := range op.RequestBody.Content {
					if err := resolveSchema(doc, scope+" request "+ct, media.Schema); err != nil {
						return err
					}
				}
			}
			if len(op.Responses) == 0 {
				return fmt.Errorf("%s has no responses", scope)
			}
			for status, resp := range op.Responses {
				if resp.Ref == "" {
					continue
				}
				name := strings.TrimPrefix(resp.Ref, responseRefPrefix)
				if name == resp.Ref {
					return fmt.Errorf("%s response %s: unsupported ref %q", scope, status, resp.Ref)
				}
				if _, ok := doc.Components.Responses[name]; !ok {
					return fmt.Errorf("%s response %s: unknown response %q", scope, status, name)
				}
			}
		}
	}
	return nil
}

func resolveSchema(doc openAPIDoc, scope string, s schema) error {
	if ref := strings.TrimSpace(s.Ref); ref != "" {
		name := strings.TrimPrefix(ref, schemaRefPrefix)
		if name == ref {
			return fmt.Errorf("%s: unsupported ref %q", scope, ref)
		}
		if _, ok := doc.Components.Schemas[name]; !ok {
			return fmt.Errorf("%s: unknown schema %q", scope, name)
		}
	}
	if s.Items != nil {
		if err := resolveSchema(doc, scope+".items", *s.Items); err != nil {
			return err
		}
	}
	for name, prop := range s.Properties {
		if err := resolveSchema(doc, scope+"."+name, prop); err != nil {
			return err
		}
	}
	return nil
}

func (p pathItem) methods() map[string]*operation {
	return map[string]*operation{
		"get":    p.Get,
		"post":   p.Post,
		"put":    p.Put,
		"delete": p.Delete,
	}
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
