package dispatch

import (
	"fmt"

	"github.com/osteele/liquid"
)

// Renderer renders message bodies from Liquid templates. Each recipient
// gets its own render with name and custom fields bound, so the stored
// item body is the exact text that will go out.
type Renderer struct {
	engine *liquid.Engine
}

// NewRenderer creates a renderer with the default engine.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render produces the message body for one recipient.
// Available bindings: {{ name }}, {{ phone }}, and any custom fields.
func (r *Renderer) Render(template string, recipient RecipientInput) (string, error) {
	bindings := map[string]interface{}{
		"name":  recipient.Name,
		"phone": recipient.Phone,
	}
	for k, v := range recipient.Fields {
		bindings[k] = v
	}

	out, err := r.engine.ParseAndRenderString(template, bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}
