// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

// RenderTemplate replaces every {key} in template with data[key]. Unknown
// placeholders are left as written.
func RenderTemplate(template string, data map[string]string) string {
	if !strings.Contains(template, "{") {
		return template
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// RecipientData is the placeholder set of one campaign recipient. Recipient
// variables never override name and identifier.
func RecipientData(r model.Recipient) map[string]string {
	data := make(map[string]string, len(r.Variables)+2)
	for k, v := range r.Variables {
		data[k] = v
	}
	data["identifier"] = r.Identifier
	data["name"] = r.Name
	if r.Name == "" {
		data["name"] = r.Identifier
	}
	return data
}

// ContactData is the placeholder set used by template auto-replies.
func ContactData(c *model.Contact) map[string]string {
	name := c.DisplayName
	if name == "" {
		name = c.Identifier
	}
	return map[string]string{
		"name":       name,
		"identifier": c.Identifier,
	}
}
