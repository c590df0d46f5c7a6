package classes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type document struct {
	Fields  Fields   `yaml:"fields"`
	Indexes []*Index `yaml:"indexes"`
	Classes []*Class `yaml:"classes"`
}

// ParseYAML builds an environment from a document like
//
//	fields:
//	  - {name: tags, type: text, collection: true}
//	indexes:
//	  - fields: [tags]
//	classes:
//	  - name: Article
//	    fields:
//	      - {name: title, type: text}
//	    indexes:
//	      - fields: [title]
func ParseYAML(data []byte) (*Environment, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("classes: %w", err)
	}
	env := NewEnvironment()
	for _, f := range doc.Fields {
		if err := env.AddGlobal(f); err != nil {
			return nil, err
		}
	}
	for _, ix := range doc.Indexes {
		if err := env.AddGlobal(Field{Name: ix.Field()}, ix); err != nil {
			return nil, err
		}
	}
	for _, c := range doc.Classes {
		if err := env.Add(c); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func LoadYAML(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}
