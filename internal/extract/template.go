package extract

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Template is a system/user prompt pair with {name} placeholders.
type Template struct {
	System string
	User   string
}

var placeholderRE = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Render substitutes vars into both prompts. A placeholder without a
// matching variable is an error.
func (t Template) Render(vars map[string]string) (system, user string, err error) {
	if system, err = render(t.System, vars); err != nil {
		return "", "", eris.Wrap(err, "render system prompt")
	}
	if user, err = render(t.User, vars); err != nil {
		return "", "", eris.Wrap(err, "render user prompt")
	}
	return system, user, nil
}

// Placeholders lists the distinct variable names used by the template.
func (t Template) Placeholders() []string {
	seen := map[string]bool{}
	var out []string
	for _, text := range []string{t.System, t.User} {
		for _, m := range placeholderRE.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out
}

func render(text string, vars map[string]string) (string, error) {
	var missing []string
	out := placeholderRE.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", eris.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
