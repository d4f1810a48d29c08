// internal/role/overrides.go
//
// Adept Users – role catalogue: YAML overrides.
//
// Context
//   Operators tune labels, requiredness, rules, defaults, and post-create
//   actions without a rebuild.  Each file under the roles directory targets
//   one role:
//
//     role: sales
//     title: Field sales
//     fields:
//       - key: phone
//         required: true
//     defaults:
//       monthlyTarget: 10000
//     actions:
//       - type: audit
//       - type: webhook
//         url: https://hooks.example.com/users
//
//   Overrides may only touch existing keys.  Adding a field would leave it
//   without a home in the role's typed payload.
//
// Notes
//   •  A missing directory is not an error; the built-ins stand alone.
//   •  Files are read once by Load.  There is no hot reload.
//
//------------------------------------------------------------------------------

package role

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/adept-users/internal/form"
)

// ActionDef declares one post-create action.  Params holds every key other
// than type, for example url and headers for a webhook.
type ActionDef struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:",inline"`
}

// ActionFactory turns a declaration into a runnable action.
type ActionFactory func(role Role, def ActionDef) (form.Action, error)

// roleFile is the on-disk shape of one override file.
type roleFile struct {
	Role     string          `yaml:"role"`
	Title    string          `yaml:"title"`
	Fields   []fieldOverride `yaml:"fields"`
	Defaults map[string]any  `yaml:"defaults"`
	Actions  []ActionDef     `yaml:"actions"`
}

type fieldOverride struct {
	Key      string     `yaml:"key"`
	Label    *string    `yaml:"label"`
	Required *bool      `yaml:"required"`
	Rule     *form.Rule `yaml:"rule"`
}

// Load builds the catalogue from the built-ins plus overrides found in dir.
// factory may be nil when no role declares actions.
func Load(dir string, factory ActionFactory, log *zap.SugaredLogger) (*Catalogue, error) {
	if log == nil {
		log = zap.S()
	}

	files, err := readOverrides(dir)
	if err != nil {
		return nil, err
	}

	c := &Catalogue{variants: make(map[Role]*Variant)}
	for r, b := range builtins() {
		v, err := buildVariant(r, b, files[r], factory)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", r, err)
		}
		c.variants[r] = v
		log.Debugw("role loaded",
			"role", r, "fields", len(v.Fields.All()), "actions", len(v.Actions),
			"overridden", files[r] != nil)
	}
	return c, nil
}

// readOverrides parses every *.yaml / *.yml file in dir.
func readOverrides(dir string) (map[Role]*roleFile, error) {
	out := make(map[Role]*roleFile)
	if dir == "" {
		return out, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var rf roleFile
		if err := yaml.Unmarshal(raw, &rf); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		name := rf.Role
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		r, err := Parse(name)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := out[r]; dup {
			return fmt.Errorf("%s: duplicate override for role %q", path, r)
		}
		out[r] = &rf
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return map[Role]*roleFile{}, nil
	}
	return out, err
}

func buildVariant(r Role, b builtin, rf *roleFile, factory ActionFactory) (*Variant, error) {
	fields := b.fields
	defaults := maps.Clone(b.defaults)
	if defaults == nil {
		defaults = map[string]any{}
	}
	title := b.title
	var defs []ActionDef

	if rf != nil {
		var err error
		if fields, err = applyFieldOverrides(fields, rf.Fields); err != nil {
			return nil, err
		}
		maps.Copy(defaults, rf.Defaults)
		if rf.Title != "" {
			title = rf.Title
		}
		defs = rf.Actions
	}

	set, err := form.NewFieldSet(fields...)
	if err != nil {
		return nil, err
	}
	for k, v := range defaults {
		d, ok := set.Lookup(k)
		if !ok {
			return nil, fmt.Errorf("%w: default for %q", form.ErrUnknownField, k)
		}
		nv, err := normaliseDefault(d, v)
		if err != nil {
			return nil, err
		}
		defaults[k] = nv
	}

	v := &Variant{
		Role:       r,
		Title:      title,
		Fields:     set,
		Defaults:   defaults,
		Payload:    b.payload,
		ActionDefs: defs,
	}
	for _, def := range defs {
		if factory == nil {
			return nil, fmt.Errorf("action %q declared but no factory configured", def.Type)
		}
		a, err := factory(r, def)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", def.Type, err)
		}
		v.Actions = append(v.Actions, a)
	}
	return v, nil
}

func applyFieldOverrides(base []form.FieldDescriptor, ovs []fieldOverride) ([]form.FieldDescriptor, error) {
	out := make([]form.FieldDescriptor, len(base))
	copy(out, base)

	for _, ov := range ovs {
		i := indexOf(out, ov.Key)
		if i < 0 {
			return nil, fmt.Errorf("%w: override for %q", form.ErrUnknownField, ov.Key)
		}
		if ov.Label != nil {
			out[i].Label = *ov.Label
		}
		if ov.Required != nil {
			out[i].Required = *ov.Required
		}
		if ov.Rule != nil {
			rule := *ov.Rule
			if rule.Matches == "" && out[i].Rule != nil {
				rule.Matches = out[i].Rule.Matches
			}
			out[i].Rule = &rule
		}
	}
	return out, nil
}

func indexOf(fields []form.FieldDescriptor, key string) int {
	for i, d := range fields {
		if d.Key == key {
			return i
		}
	}
	return -1
}

// normaliseDefault coerces a YAML scalar or list to the type the form
// stores for d's kind.
func normaliseDefault(d form.FieldDescriptor, v any) (any, error) {
	switch d.Kind {
	case form.KindMultiSelect:
		if v == nil {
			return []int64{}, nil
		}
		ids, ok := form.ToIDs(v)
		if !ok {
			return nil, fmt.Errorf("default for %q: %w", d.Key, form.ErrInvalidItem)
		}
		return ids, nil
	case form.KindFile:
		return nil, fmt.Errorf("default for %q: %w", d.Key, form.ErrFileValue)
	case form.KindNumber:
		return v, nil
	default:
		if v == nil {
			return "", nil
		}
		return fmt.Sprint(v), nil
	}
}
