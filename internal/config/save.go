package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveEntity replaces the entity with the same name in the schema file, or
// appends it. Comments and other top-level keys are preserved.
func SaveEntity(schemaPath string, entity EntityConfig) error {
	entityNode, err := encodeNode(entity)
	if err != nil {
		return fmt.Errorf("building entity node: %w", err)
	}
	return editEntities(schemaPath, func(seq *yaml.Node) error {
		for i, item := range seq.Content {
			if nameOf(item) == entity.Name {
				seq.Content[i] = entityNode
				return nil
			}
		}
		seq.Content = append(seq.Content, entityNode)
		return nil
	})
}

// RemoveEntity deletes the named entity from the schema file.
func RemoveEntity(schemaPath, name string) error {
	return editEntities(schemaPath, func(seq *yaml.Node) error {
		for i, item := range seq.Content {
			if nameOf(item) == name {
				seq.Content = append(seq.Content[:i], seq.Content[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	})
}

// editEntities loads the file as a yaml.Node, hands the entities sequence to
// edit, and writes the result back atomically.
func editEntities(schemaPath string, edit func(seq *yaml.Node) error) error {
	data, err := os.ReadFile(schemaPath) //nolint:gosec // G304: path comes from user config
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading schema: %w", err)
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing schema: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("parsing schema: top level must be a mapping")
	}

	var seq *yaml.Node
	for i := 0; i < len(root.Content)-1; i += 2 {
		if root.Content[i].Value == "entities" {
			seq = root.Content[i+1]
			break
		}
	}
	switch {
	case seq == nil:
		seq = &yaml.Node{Kind: yaml.SequenceNode}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "entities"}, seq)
	case seq.Kind != yaml.SequenceNode:
		*seq = yaml.Node{Kind: yaml.SequenceNode}
	}

	if err := edit(seq); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	_ = enc.Close()
	return writeAtomic(schemaPath, buf.Bytes())
}

func encodeNode(v any) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return &n, nil
}

func nameOf(item *yaml.Node) string {
	if item.Kind != yaml.MappingNode {
		return ""
	}
	for i := 0; i < len(item.Content)-1; i += 2 {
		if item.Content[i].Value == "name" {
			return item.Content[i+1].Value
		}
	}
	return ""
}

// writeAtomic writes to a temp file in the target directory, then renames it.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating schema directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".schema.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
