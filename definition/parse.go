package definition

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/utils"
	"gopkg.in/yaml.v2"
)

type (
	// Documents is the on-disk grammar: endpoint name to endpoint
	Documents map[string]Document

	// Document describes a single endpoint in a definition file
	Document struct {
		Method   string    `json:"method" yaml:"method" validate:"required,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS CONNECT TRACE"`
		Path     string    `json:"path" yaml:"path" validate:"required,startswith=/"`
		Match    string    `json:"match,omitempty" yaml:"match,omitempty"`
		Response Reply     `json:"response" yaml:"response"`
		Behavior *Behavior `json:"behavior,omitempty" yaml:"behavior,omitempty"`
	}

	// Reply is the response block of a Document
	Reply struct {
		Status      int    `json:"status" yaml:"status" validate:"omitempty,min=100,max=599"`
		Body        string `json:"body,omitempty" yaml:"body,omitempty"`
		ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	}

	// Behavior is the optional stateful block of a Document
	Behavior struct {
		Countdown *CountdownBlock `json:"countdown,omitempty" yaml:"countdown,omitempty"`
		Idle      int64           `json:"idle,omitempty" yaml:"idle,omitempty" validate:"gte=0"`
	}

	// CountdownBlock declares how many calls get the override status
	CountdownBlock struct {
		Calls  int64 `json:"calls" yaml:"calls" validate:"gte=0"`
		Status int   `json:"status" yaml:"status" validate:"omitempty,min=100,max=599"`
	}

	// ParseError reports a definition file that could not be turned into definitions
	ParseError struct {
		Source     string
		Name       string
		Constraint string
		Err        error
	}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(pe.Source)

	if pe.Name != "" {
		fmt.Fprintf(&b, ": %s", pe.Name)
	}

	fmt.Fprintf(&b, ": %s", pe.Constraint)

	if pe.Err != nil {
		fmt.Fprintf(&b, ": %v", pe.Err)
	}

	return b.String()
}

func (pe *ParseError) Unwrap() error {
	return pe.Err
}

// ParseFile reads a single definition file
func ParseFile(path string) ([]*Definition, error) {
	content, err := os.ReadFile(path)

	if err != nil {
		return nil, &ParseError{Source: path, Constraint: "unreadable file", Err: err}
	}

	return Parse(path, content)
}

// Parse turns the content of a definition file into validated definitions sorted by name
func Parse(source string, content []byte) ([]*Definition, error) {
	docs := Documents{}

	if err := yaml.UnmarshalStrict(content, &docs); err != nil {
		return nil, &ParseError{Source: source, Constraint: "malformed document", Err: err}
	}

	if len(docs) == 0 {
		return nil, &ParseError{Source: source, Constraint: "no endpoints defined"}
	}

	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := map[Key]string{}
	defs := make([]*Definition, 0, len(docs))

	for _, name := range names {
		def, err := docs[name].Definition(source, name)
		if err != nil {
			return nil, err
		}

		if other, dup := seen[def.Key()]; dup {
			return nil, &ParseError{
				Source:     source,
				Name:       name,
				Constraint: fmt.Sprintf("%s already defined by %s", def.Key(), other),
			}
		}

		seen[def.Key()] = name
		defs = append(defs, def)
	}

	return defs, nil
}

// Definition validates the document and builds the endpoint it describes
func (d Document) Definition(source, name string) (*Definition, error) {
	d.Method = utils.ToUpper(strings.TrimSpace(d.Method))

	if err := validate.Struct(d); err != nil {
		return nil, &ParseError{Source: source, Name: name, Constraint: constraint(err)}
	}

	def := &Definition{
		Name:   name,
		Method: d.Method,
		Path:   d.Path,
		Match:  d.Match,
		Source: source,
		Response: Response{
			Status:      d.Response.Status,
			Body:        d.Response.Body,
			ContentType: d.Response.ContentType,
		},
	}

	if def.Response.Status == 0 {
		def.Response.Status = http.StatusOK
	}

	if def.Response.ContentType == "" {
		def.Response.ContentType = DefaultContentType
	}

	if b := d.Behavior; b != nil {
		def.Idle = time.Duration(b.Idle) * time.Millisecond

		if cd := b.Countdown; cd != nil {
			switch {
			case cd.Calls > 0 && cd.Status == 0:
				return nil, &ParseError{Source: source, Name: name, Constraint: "behavior.countdown: calls without a status"}
			case cd.Calls == 0 && cd.Status != 0:
				return nil, &ParseError{Source: source, Name: name, Constraint: "behavior.countdown: status without calls"}
			case cd.Calls > 0:
				def.Countdown = NewCountdown(cd.Calls, cd.Status)
			}
		}
	}

	return def, nil
}

// Document converts a definition back into its file representation
func (d *Definition) Document() Document {
	doc := Document{
		Method: d.Method,
		Path:   d.Path,
		Match:  d.Match,
		Response: Reply{
			Status:      d.Response.Status,
			Body:        d.Response.Body,
			ContentType: d.Response.ContentType,
		},
	}

	if d.Countdown != nil || d.Idle > 0 {
		doc.Behavior = &Behavior{Idle: d.Idle.Milliseconds()}

		if d.Countdown != nil {
			doc.Behavior.Countdown = &CountdownBlock{Calls: d.Countdown.Calls, Status: d.Countdown.Status}
		}
	}

	return doc
}

func constraint(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	fe := verrs[0]
	field := fe.Namespace()

	// drop the struct name
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + ": missing required field"
	case "oneof":
		return fmt.Sprintf("%s: invalid value %q", field, fe.Value())
	case "min", "max":
		return fmt.Sprintf("%s: %v is not a valid HTTP status code", field, fe.Value())
	case "gte":
		return fmt.Sprintf("%s: %v must not be negative", field, fe.Value())
	case "startswith":
		return fmt.Sprintf("%s: %q must start with /", field, fe.Value())
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}
