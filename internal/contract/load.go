// Package contract 는 파일에서 SchemaContract 를 읽어온다.
//
// 지원 형식:
//   - (빈 경로)     : model.DefaultContract()
//   - .yaml / .yml : fields 목록
//   - .json        : JSON Schema (draft 2020-12), 최상위 properties 의 key 집합
package contract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"landing-sentinel/internal/model"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// yamlContract 는 YAML contract 파일 구조.
//
//	fields:
//	  - event_id
//	  - amount
type yamlContract struct {
	Fields []string `yaml:"fields"`
}

// Load 는 path 확장자에 따라 contract 를 만든다.
// 필드가 하나도 없으면 오류 (빈 contract 는 모든 필드를 extra 로 만든다).
func Load(path string) (model.SchemaContract, error) {
	if strings.TrimSpace(path) == "" {
		return model.DefaultContract(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return model.SchemaContract{}, fmt.Errorf("read contract %s: %w", path, err)
	}

	var fields []string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		fields, err = fromYAML(raw)
	case ".json":
		fields, err = fromJSONSchema(path, raw)
	default:
		return model.SchemaContract{}, fmt.Errorf("contract %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return model.SchemaContract{}, fmt.Errorf("contract %s: %w", path, err)
	}

	c := model.NewSchemaContract(fields...)
	if c.Len() == 0 {
		return model.SchemaContract{}, fmt.Errorf("contract %s: no fields", path)
	}
	return c, nil
}

func fromYAML(raw []byte) ([]string, error) {
	var doc yamlContract
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return doc.Fields, nil
}

func fromJSONSchema(path string, raw []byte) ([]string, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	url := "file:///contract/" + filepath.Base(path)
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load json schema: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile json schema: %w", err)
	}

	// 최상위가 $ref 하나뿐이면 따라간다 (순환 ref 대비 깊이 제한).
	for depth := 0; depth < 8 && s.Ref != nil && len(s.Properties) == 0; depth++ {
		s = s.Ref
	}

	fields := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		fields = append(fields, name)
	}
	return fields, nil
}
