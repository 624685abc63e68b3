// Package catalog загружает и хранит каталог государственных программ.
// Каталог неизменяем после загрузки и может читаться конкурентно без блокировок.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
	"github.com/mmeshcher/scheme-eligibility/internal/rules"
)

//go:embed schemes.yaml
var defaultCatalog []byte

//go:embed catalog.schema.json
var documentSchema string

// CatalogLoadError описывает ошибку загрузки каталога. SchemeID пуст, если ошибка не относится к конкретной программе.
type CatalogLoadError struct {
	SchemeID string
	Err      error
}

func (e *CatalogLoadError) Error() string {
	if e.SchemeID == "" {
		return fmt.Sprintf("load catalog: %v", e.Err)
	}
	return fmt.Sprintf("load catalog: scheme %q: %v", e.SchemeID, e.Err)
}

func (e *CatalogLoadError) Unwrap() error {
	return e.Err
}

// Scheme описывает программу каталога вместе со скомпилированным правилом отбора.
type Scheme struct {
	ID          string
	Name        string
	Ministry    string
	Description string
	Benefits    string
	Documents   []string
	Rule        rules.Node
}

// Catalog хранит упорядоченный набор программ.
type Catalog struct {
	schemes []Scheme
	index   map[string]int
}

type document struct {
	Schemes []schemeDocument `yaml:"schemes"`
}

type schemeDocument struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Ministry    string      `yaml:"ministry"`
	Description string      `yaml:"description"`
	Benefits    string      `yaml:"benefits"`
	Documents   []string    `yaml:"documents_required"`
	Eligibility *rules.Spec `yaml:"eligibility"`
}

// Load разбирает каталог в формате YAML или JSON. Загрузка атомарна: при любой ошибке
// возвращается nil и *CatalogLoadError.
func Load(data []byte) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &CatalogLoadError{Err: fmt.Errorf("decode: %w", err)}
	}
	if err := validateStructure(raw); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &CatalogLoadError{Err: fmt.Errorf("decode: %w", err)}
	}

	c := &Catalog{
		schemes: make([]Scheme, 0, len(doc.Schemes)),
		index:   make(map[string]int, len(doc.Schemes)),
	}
	for _, sd := range doc.Schemes {
		id := strings.TrimSpace(sd.ID)
		if _, dup := c.index[id]; dup {
			return nil, &CatalogLoadError{SchemeID: id, Err: errors.New("duplicate scheme id")}
		}

		rule, err := rules.Compile(sd.Eligibility)
		if err != nil {
			return nil, &CatalogLoadError{SchemeID: id, Err: err}
		}

		c.index[id] = len(c.schemes)
		c.schemes = append(c.schemes, Scheme{
			ID:          id,
			Name:        strings.TrimSpace(sd.Name),
			Ministry:    sd.Ministry,
			Description: sd.Description,
			Benefits:    sd.Benefits,
			Documents:   append([]string{}, sd.Documents...),
			Rule:        rule,
		})
	}

	return c, nil
}

// LoadFile читает каталог из файла.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CatalogLoadError{Err: fmt.Errorf("read %s: %w", path, err)}
	}
	return Load(data)
}

// Default возвращает встроенный каталог программ.
func Default() (*Catalog, error) {
	return Load(defaultCatalog)
}

// List возвращает программы в порядке каталога.
func (c *Catalog) List() []Scheme {
	out := make([]Scheme, len(c.schemes))
	copy(out, c.schemes)
	return out
}

// Get возвращает программу по идентификатору.
func (c *Catalog) Get(id string) (Scheme, error) {
	i, ok := c.index[id]
	if !ok {
		return Scheme{}, fmt.Errorf("scheme %q: %w", id, model.ErrNotFound)
	}
	return c.schemes[i], nil
}

// Len возвращает количество программ.
func (c *Catalog) Len() int {
	return len(c.schemes)
}

func validateStructure(raw any) error {
	schema := gojsonschema.NewStringLoader(documentSchema)
	res, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return &CatalogLoadError{Err: fmt.Errorf("validate: %w", err)}
	}
	if res.Valid() {
		return nil
	}

	first := res.Errors()[0]
	return &CatalogLoadError{
		SchemeID: schemeIDAt(raw, first.Field()),
		Err:      fmt.Errorf("%s: %s", first.Field(), first.Description()),
	}
}

// schemeIDAt извлекает идентификатор программы по пути вида "schemes.3.eligibility".
func schemeIDAt(raw any, path string) string {
	parts := strings.Split(path, ".")
	if len(parts) < 2 || parts[0] != "schemes" {
		return ""
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return ""
	}
	root, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	list, ok := root["schemes"].([]any)
	if !ok || idx < 0 || idx >= len(list) {
		return ""
	}
	item, ok := list[idx].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := item["id"].(string)
	return id
}
